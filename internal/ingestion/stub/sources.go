// Package stub provides in-memory ingestion sources for tests.
package stub

import (
	"context"
	"sync"

	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/ingestion"
)

var _ ingestion.Source = (*Source)(nil)

// Source replays a fixed slice of events. After the last event the stream
// ends with EndErr.
type Source struct {
	Events       []domain.RawEvent
	EndErr       error
	SubscribeErr error
	// Hold keeps the stream open after the last event until Close or ctx end.
	Hold bool

	mu         sync.Mutex
	subscribed int
}

// Subscribe starts delivering the configured events.
func (s *Source) Subscribe(ctx context.Context) (ingestion.Stream, error) {
	s.mu.Lock()
	s.subscribed++
	s.mu.Unlock()
	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{events: make(chan domain.RawEvent), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(st.done)
		defer close(st.events)
		for _, e := range s.Events {
			select {
			case st.events <- e:
			case <-ctx.Done():
				return
			}
		}
		if s.Hold {
			<-ctx.Done()
			return
		}
		st.mu.Lock()
		st.err = s.EndErr
		st.mu.Unlock()
	}()
	return st, nil
}

// Subscriptions returns how many times Subscribe was called.
func (s *Source) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// Stream is the stream returned by Source.
type Stream struct {
	events chan domain.RawEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// Events returns the event channel. Unbuffered, so a send completes only
// when the consumer takes the event.
func (s *Stream) Events() <-chan domain.RawEvent {
	return s.events
}

// Err returns the end-of-stream error.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery.
func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
