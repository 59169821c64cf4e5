package storage

import (
	"context"

	"solana-dex-router/internal/domain"
)

// OutboxStore records published envelopes durably.
type OutboxStore interface {
	// Insert adds an entry. Returns ErrDuplicateKey if the envelope id exists.
	Insert(ctx context.Context, e *domain.OutboxEntry) error

	// GetByID returns the entry or ErrNotFound.
	GetByID(ctx context.Context, envelopeID string) (*domain.OutboxEntry, error)

	// ListPending returns undelivered entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]*domain.OutboxEntry, error)

	// MarkDelivered stamps an entry as forwarded. Returns ErrNotFound if missing.
	MarkDelivered(ctx context.Context, envelopeID string, deliveredAt int64) error
}

// SnapshotStore records periodic metrics snapshots.
type SnapshotStore interface {
	// InsertBulk adds snapshots. Fails entire batch on duplicate (instance, timestamp_ms).
	InsertBulk(ctx context.Context, rows []*domain.MetricsSnapshotRow) error

	// GetRange returns snapshots of instance within [from, to] (inclusive), ordered by time.
	GetRange(ctx context.Context, instance string, from, to int64) ([]*domain.MetricsSnapshotRow, error)
}
