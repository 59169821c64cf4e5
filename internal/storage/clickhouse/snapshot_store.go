package clickhouse

import (
	"context"
	"fmt"

	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate.
func (s *SnapshotStore) InsertBulk(ctx context.Context, rows []*domain.MetricsSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}

	type key struct {
		instance    string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(rows))
	for _, r := range rows {
		if r.Instance == "" {
			return fmt.Errorf("%w: empty instance", storage.ErrInvalidInput)
		}
		k := key{r.Instance, r.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// MergeTree does not enforce uniqueness
	for _, r := range rows {
		exists, err := s.exists(ctx, r.Instance, r.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pipeline_metrics (
			instance, timestamp_ms, uptime_ms, received, admitted,
			publish_success, publish_failure,
			rejected_recency, rejected_value, rejected_program, rejected_sample,
			pool_creations, swaps, liquidity_ops, other_ops,
			avg_latency_ms, filter_rate, stalled
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		var stalled uint8
		if r.Stalled {
			stalled = 1
		}
		if err := batch.Append(
			r.Instance,
			uint64(r.TimestampMs),
			uint64(r.UptimeMs),
			r.Received,
			r.Admitted,
			r.PublishSuccess,
			r.PublishFailure,
			r.RejectedRecency,
			r.RejectedValue,
			r.RejectedProgram,
			r.RejectedSample,
			r.PoolCreations,
			r.Swaps,
			r.LiquidityOps,
			r.OtherOps,
			r.AvgLatencyMs,
			r.FilterRate,
			stalled,
		); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange returns snapshots of instance within [from, to] (inclusive), ordered by time.
func (s *SnapshotStore) GetRange(ctx context.Context, instance string, from, to int64) ([]*domain.MetricsSnapshotRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			instance, timestamp_ms, uptime_ms, received, admitted,
			publish_success, publish_failure,
			rejected_recency, rejected_value, rejected_program, rejected_sample,
			pool_creations, swaps, liquidity_ops, other_ops,
			avg_latency_ms, filter_rate, stalled
		FROM pipeline_metrics
		WHERE instance = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`, instance, uint64(from), uint64(to))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.MetricsSnapshotRow
	for rows.Next() {
		var (
			r                 domain.MetricsSnapshotRow
			timestampMs, upMs uint64
			stalled           uint8
		)
		if err := rows.Scan(
			&r.Instance,
			&timestampMs,
			&upMs,
			&r.Received,
			&r.Admitted,
			&r.PublishSuccess,
			&r.PublishFailure,
			&r.RejectedRecency,
			&r.RejectedValue,
			&r.RejectedProgram,
			&r.RejectedSample,
			&r.PoolCreations,
			&r.Swaps,
			&r.LiquidityOps,
			&r.OtherOps,
			&r.AvgLatencyMs,
			&r.FilterRate,
			&stalled,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		r.TimestampMs = int64(timestampMs)
		r.UptimeMs = int64(upMs)
		r.Stalled = stalled == 1
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}

func (s *SnapshotStore) exists(ctx context.Context, instance string, timestampMs int64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM pipeline_metrics WHERE instance = ? AND timestamp_ms = ?
	`, instance, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
