package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/jsoncodec"
)

// JSONLSourceOptions configures a JSONLSource.
type JSONLSourceOptions struct {
	// Path of a file with one RawEvent JSON object per line. Ignored when
	// Reader is set.
	Path   string
	Reader io.Reader
	// EventsPerSecond paces delivery; 0 replays as fast as possible.
	EventsPerSecond float64
	Burst           int
	Buffer          int
	Logger          *zap.Logger
}

// JSONLSource replays recorded events in file order.
type JSONLSource struct {
	opts   JSONLSourceOptions
	logger *zap.Logger
}

// NewJSONLSource creates a replay source.
func NewJSONLSource(opts JSONLSourceOptions) *JSONLSource {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &JSONLSource{opts: opts, logger: opts.Logger.Named("jsonl-source")}
}

// Subscribe opens the input. A missing file is a subscription failure; a
// malformed record ends the stream with an error.
func (s *JSONLSource) Subscribe(ctx context.Context) (Stream, error) {
	r := s.opts.Reader
	var closer io.Closer
	if r == nil {
		f, err := os.Open(s.opts.Path)
		if err != nil {
			return nil, fmt.Errorf("open replay file: %w", err)
		}
		r, closer = f, f
	}

	var limiter *rate.Limiter
	if s.opts.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.EventsPerSecond), s.opts.Burst)
	}

	stream, sctx := newChanStream(ctx, s.opts.Buffer)
	if closer != nil {
		stream.onClose = closer.Close
	}

	go func() {
		dec := jsoncodec.NewDecoder(r)
		for n := 1; ; n++ {
			var e domain.RawEvent
			if err := dec.Decode(&e); err != nil {
				if errors.Is(err, io.EOF) {
					s.logger.Info("replay finished", zap.Int("events", n-1))
					stream.finish(nil)
					return
				}
				stream.finish(fmt.Errorf("replay record %d: %w", n, err))
				return
			}
			if e.Kind == "" {
				e.Kind = domain.EventKindTransaction
			}
			if limiter != nil {
				if err := limiter.Wait(sctx); err != nil {
					stream.finish(nil)
					return
				}
			}
			if !stream.send(sctx, e) {
				stream.finish(nil)
				return
			}
		}
	}()

	return stream, nil
}
