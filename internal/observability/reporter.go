package observability

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/filter"
	"solana-dex-router/internal/metrics"
	"solana-dex-router/internal/storage"
)

// DefaultReportInterval is how often snapshots are written.
const DefaultReportInterval = 30 * time.Second

// ReporterOptions configures a SnapshotReporter.
type ReporterOptions struct {
	Instance string
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// SnapshotReporter periodically writes metrics snapshots to a store.
type SnapshotReporter struct {
	store    storage.SnapshotStore
	src      SnapshotSource
	instance string
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSnapshotReporter creates a reporter. Instance must be set.
func NewSnapshotReporter(store storage.SnapshotStore, src SnapshotSource, opts ReporterOptions) (*SnapshotReporter, error) {
	if opts.Instance == "" {
		return nil, errors.New("reporter instance is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultReportInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SnapshotReporter{
		store:    store,
		src:      src,
		instance: opts.Instance,
		interval: opts.Interval,
		logger:   opts.Logger.Named("reporter"),
		now:      opts.Now,
	}, nil
}

// Run writes a snapshot every interval until ctx is done, then writes a
// final one with a fresh context. Write failures are logged and skipped.
func (r *SnapshotReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := r.Report(final); err != nil {
				r.logger.Warn("final snapshot failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := r.Report(ctx); err != nil {
				r.logger.Warn("snapshot failed", zap.Error(err))
			}
		}
	}
}

// Report writes one snapshot.
func (r *SnapshotReporter) Report(ctx context.Context) error {
	row := SnapshotRow(r.instance, r.src.Snapshot(), r.now())
	return r.store.InsertBulk(ctx, []*domain.MetricsSnapshotRow{row})
}

// SnapshotRow converts a snapshot into a storage row stamped at now.
func SnapshotRow(instance string, s metrics.Snapshot, now time.Time) *domain.MetricsSnapshotRow {
	return &domain.MetricsSnapshotRow{
		Instance:        instance,
		TimestampMs:     now.UnixMilli(),
		UptimeMs:        s.Uptime.Milliseconds(),
		Received:        s.Received,
		Admitted:        s.Admitted,
		PublishSuccess:  s.PublishSuccess,
		PublishFailure:  s.PublishFailure,
		RejectedRecency: s.Rejected[filter.StageRecency],
		RejectedValue:   s.Rejected[filter.StageValue],
		RejectedProgram: s.Rejected[filter.StageProgram],
		RejectedSample:  s.Rejected[filter.StageSample],
		PoolCreations:   s.Classes[decoder.ClassPoolCreation],
		Swaps:           s.Classes[decoder.ClassSwap],
		LiquidityOps:    s.Classes[decoder.ClassLiquidity],
		OtherOps:        s.Classes[decoder.ClassOther],
		AvgLatencyMs:    s.AvgLatencyMs,
		FilterRate:      s.FilterRate,
		Stalled:         s.Stalled,
	}
}
