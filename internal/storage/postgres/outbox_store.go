package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-dex-router/internal/broker"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/idhash"
	"solana-dex-router/internal/storage"
)

// OutboxStore persists published envelopes into event_outbox. It doubles as a
// broker so the publisher can write through it; a relay drains pending rows.
type OutboxStore struct {
	pool *Pool
	now  func() time.Time
}

// NewOutboxStore creates a new OutboxStore.
func NewOutboxStore(pool *Pool) *OutboxStore {
	return &OutboxStore{pool: pool, now: time.Now}
}

var (
	_ storage.OutboxStore = (*OutboxStore)(nil)
	_ broker.Broker       = (*OutboxStore)(nil)
)

// Insert adds an entry. Returns ErrDuplicateKey if envelope_id exists.
func (s *OutboxStore) Insert(ctx context.Context, e *domain.OutboxEntry) error {
	if e.EnvelopeID == "" || e.Topic == "" {
		return fmt.Errorf("%w: envelope id and topic are required", storage.ErrInvalidInput)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_outbox (envelope_id, signature, topic, payload, created_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.EnvelopeID, e.Signature, e.Topic, e.Payload, e.CreatedAt, e.DeliveredAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// GetByID retrieves an entry by envelope id. Returns ErrNotFound if absent.
func (s *OutboxStore) GetByID(ctx context.Context, envelopeID string) (*domain.OutboxEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT envelope_id, signature, topic, payload, created_at, delivered_at
		FROM event_outbox
		WHERE envelope_id = $1
	`, envelopeID)

	var e domain.OutboxEntry
	if err := row.Scan(&e.EnvelopeID, &e.Signature, &e.Topic, &e.Payload, &e.CreatedAt, &e.DeliveredAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get outbox entry: %w", err)
	}
	return &e, nil
}

// ListPending returns undelivered entries, oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT envelope_id, signature, topic, payload, created_at, delivered_at
		FROM event_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at ASC, envelope_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()

	var result []*domain.OutboxEntry
	for rows.Next() {
		var e domain.OutboxEntry
		if err := rows.Scan(&e.EnvelopeID, &e.Signature, &e.Topic, &e.Payload, &e.CreatedAt, &e.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return result, nil
}

// MarkDelivered stamps an entry. Returns ErrNotFound if no pending row matched.
func (s *OutboxStore) MarkDelivered(ctx context.Context, envelopeID string, deliveredAt int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE event_outbox SET delivered_at = $2
		WHERE envelope_id = $1 AND delivered_at IS NULL
	`, envelopeID, deliveredAt)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Publish records payload for topic. The signature must be carried by ctx.
// Re-publishing the same signature and topic is a no-op.
func (s *OutboxStore) Publish(ctx context.Context, topic string, payload []byte) error {
	sig, ok := broker.SignatureFrom(ctx)
	if !ok || sig == "" {
		return fmt.Errorf("%w: missing signature in context", storage.ErrInvalidInput)
	}

	err := s.Insert(ctx, &domain.OutboxEntry{
		EnvelopeID: idhash.ComputeEnvelopeID(sig, topic),
		Signature:  sig,
		Topic:      topic,
		Payload:    payload,
		CreatedAt:  s.now().UnixMilli(),
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

// Close is a no-op; the pool is owned by the caller.
func (s *OutboxStore) Close() error {
	return nil
}
