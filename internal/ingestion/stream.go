// Package ingestion supplies the pipeline with an ordered stream of raw events
// from an upstream transport.
package ingestion

import (
	"context"
	"errors"
	"sync"

	"solana-dex-router/internal/domain"
)

// ErrStreamClosed is reported when a stream is used after Close.
var ErrStreamClosed = errors.New("stream closed")

// Source establishes an upstream subscription.
type Source interface {
	// Subscribe starts delivering events. An error here is fatal for the caller.
	Subscribe(ctx context.Context) (Stream, error)
}

// Stream is an ordered sequence of events.
type Stream interface {
	// Events is closed when the stream ends.
	Events() <-chan domain.RawEvent
	// Err reports why the stream ended; nil for a graceful end. Only valid
	// after Events is closed.
	Err() error
	// Close stops the stream and releases the upstream subscription.
	Close() error
}

// chanStream is a Stream fed by a single producer goroutine.
type chanStream struct {
	events chan domain.RawEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	onClose   func() error
}

func newChanStream(ctx context.Context, buffer int) (*chanStream, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &chanStream{
		events: make(chan domain.RawEvent, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

func (s *chanStream) Events() <-chan domain.RawEvent {
	return s.events
}

func (s *chanStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *chanStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		if s.onClose != nil {
			err = s.onClose()
		}
	})
	return err
}

// send delivers e unless the stream is cancelled.
func (s *chanStream) send(ctx context.Context, e domain.RawEvent) bool {
	select {
	case s.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish records the terminal error and closes the events channel. Called
// once by the producer.
func (s *chanStream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.events)
	close(s.done)
}
