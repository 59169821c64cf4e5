// Package pipeline runs the single consumer loop: receive, admit, decode,
// publish, account.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/filter"
	"solana-dex-router/internal/ingestion"
	"solana-dex-router/internal/metrics"
	"solana-dex-router/internal/publisher"
)

// Defaults applied by New.
const (
	DefaultProgressEvery     = 1000
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultStaleAfter        = 60 * time.Second
)

// Admitter decides admission for one event.
type Admitter interface {
	Evaluate(e *domain.RawEvent) filter.Decision
}

// Decoder turns raw instruction fields into a descriptor.
type Decoder interface {
	Decode(programID string, accounts []domain.InstructionAccount, data []byte) domain.ParsedInstruction
}

// Publisher fans an admitted event out to the broker.
type Publisher interface {
	Publish(ctx context.Context, e *domain.RawEvent, parsed *domain.ParsedInstruction) publisher.Outcome
}

// Options configures a Pipeline.
type Options struct {
	Source    ingestion.Source
	Filter    Admitter
	Decoder   Decoder
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	ProgressEvery     int
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	Now               func() time.Time
}

// Pipeline consumes one upstream stream in delivery order. Run may be called
// once.
type Pipeline struct {
	source    ingestion.Source
	filter    Admitter
	decoder   Decoder
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	progressEvery     uint64
	heartbeatInterval time.Duration
	staleAfter        time.Duration
	now               func() time.Time

	state atomic.Int32

	stopping     atomic.Bool
	stopCh       chan struct{}
	shutdownOnce sync.Once
	summaryOnce  sync.Once

	admitted uint64 // owned by the consumer loop
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil || opts.Filter == nil || opts.Decoder == nil || opts.Publisher == nil {
		return nil, fmt.Errorf("pipeline: source, filter, decoder and publisher are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	p := &Pipeline{
		source:            opts.Source,
		filter:            opts.Filter,
		decoder:           opts.Decoder,
		publisher:         opts.Publisher,
		metrics:           opts.Metrics,
		logger:            opts.Logger.Named("pipeline"),
		progressEvery:     uint64(opts.ProgressEvery),
		heartbeatInterval: opts.HeartbeatInterval,
		staleAfter:        opts.StaleAfter,
		now:               opts.Now,
		stopCh:            make(chan struct{}),
	}
	p.state.Store(int32(StateConnecting))
	return p, nil
}

// State returns the current lifecycle stage.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Metrics returns the accumulator the pipeline writes to.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

func (p *Pipeline) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.logger.Debug("state change", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

// Shutdown asks the loop to stop after the event in progress. Safe to call
// from any goroutine, any number of times.
func (p *Pipeline) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.stopping.Store(true)
		close(p.stopCh)
	})
}

// Run subscribes and consumes until the stream ends, Shutdown is called or
// ctx is cancelled. A subscription failure or a transport error is returned;
// every other ending returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateConnecting)
	stream, err := p.source.Subscribe(ctx)
	if err != nil {
		p.setState(StateStopped)
		p.logger.Error("upstream subscription failed", zap.Error(err))
		p.logSummary()
		return fmt.Errorf("subscribe: %w", err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		p.heartbeat(hbCtx)
	}()

	// In-flight publishes are never cut short by cancellation.
	publishCtx := context.WithoutCancel(ctx)

	p.setState(StateStreaming)
	p.logger.Info("streaming")

	runErr := p.consume(ctx, publishCtx, stream)

	p.setState(StateDraining)
	if err := stream.Close(); err != nil {
		p.logger.Warn("closing upstream stream", zap.Error(err))
	}
	stopHeartbeat()
	hbWG.Wait()

	p.setState(StateStopped)
	p.logSummary()
	return runErr
}

func (p *Pipeline) consume(ctx, publishCtx context.Context, stream ingestion.Stream) error {
	events := stream.Events()
	for {
		// observed between events, never mid-event
		if p.stopping.Load() {
			p.logger.Info("shutdown requested, draining")
			return nil
		}

		select {
		case <-p.stopCh:
			p.logger.Info("shutdown requested, draining")
			return nil
		case <-ctx.Done():
			p.logger.Info("context cancelled, draining")
			return nil
		case e, ok := <-events:
			if !ok {
				if err := stream.Err(); err != nil {
					p.logger.Error("upstream transport failed", zap.Error(err))
					return fmt.Errorf("upstream: %w", err)
				}
				p.logger.Info("upstream ended")
				return nil
			}
			p.handle(publishCtx, &e)
		}
	}
}

// handle runs one event through admission, decoding and publishing.
func (p *Pipeline) handle(ctx context.Context, e *domain.RawEvent) {
	p.metrics.RecordReceived()

	decision := p.filter.Evaluate(e)
	if !decision.Admitted {
		p.metrics.RecordRejected(decision.RejectedBy)
		return
	}

	parsed := p.decoder.Decode(e.ProgramID, e.Accounts, e.Data)
	if parsed.Kind == domain.KindUnknown || parsed.Kind == domain.KindInvalid {
		p.logger.Debug("instruction not decoded",
			zap.String("signature", e.Signature),
			zap.String("program_id", e.ProgramID),
			zap.String("kind", parsed.Kind))
	}
	p.metrics.RecordClass(decoder.Classify(parsed.Kind))

	p.publisher.Publish(ctx, e, &parsed)

	p.metrics.RecordAdmitted(p.now().UnixMilli() - e.Timestamp)
	p.admitted++
	if p.admitted%p.progressEvery == 0 {
		s := p.metrics.Snapshot()
		p.logger.Info("progress",
			zap.Uint64("received", s.Received),
			zap.Uint64("admitted", s.Admitted),
			zap.Uint64("publish_success", s.PublishSuccess),
			zap.Uint64("publish_failure", s.PublishFailure),
			zap.Float64("avg_latency_ms", s.AvgLatencyMs))
	}
}

// heartbeat flags the upstream as stalled when nothing arrived for staleAfter.
func (p *Pipeline) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	stalled := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := p.metrics.SinceLastReceive()
			switch {
			case idle > p.staleAfter && !stalled:
				stalled = true
				p.metrics.SetStalled(true)
				p.logger.Warn("upstream may be stalled", zap.Duration("idle", idle))
			case idle <= p.staleAfter && stalled:
				stalled = false
				p.metrics.SetStalled(false)
				p.logger.Info("upstream recovered")
			}
		}
	}
}

func (p *Pipeline) logSummary() {
	p.summaryOnce.Do(func() {
		s := p.metrics.Snapshot()
		p.logger.Info("pipeline stopped",
			zap.Uint64("received", s.Received),
			zap.Uint64("admitted", s.Admitted),
			zap.Float64("filter_rate", s.FilterRate),
			zap.Uint64("publish_success", s.PublishSuccess),
			zap.Uint64("publish_failure", s.PublishFailure),
			zap.Float64("publish_success_rate", s.PublishSuccessRate),
			zap.Float64("avg_latency_ms", s.AvgLatencyMs),
			zap.Duration("uptime", s.Uptime))
	})
}
