package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-dex-router/internal/broker"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/idhash"
	"solana-dex-router/internal/ingestion"
	"solana-dex-router/internal/storage"
	"solana-dex-router/internal/storage/migrations"
	"solana-dex-router/internal/storage/postgres"
)

// setupTestDB starts a PostgreSQL container and applies the embedded migrations.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))
	// second run must be a no-op
	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

func entry(id string, createdAt int64) *domain.OutboxEntry {
	return &domain.OutboxEntry{
		EnvelopeID: id,
		Signature:  "sig-" + id,
		Topic:      "events:all",
		Payload:    []byte(`{"signature":"sig-` + id + `"}`),
		CreatedAt:  createdAt,
	}
}

func TestOutboxStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewOutboxStore(pool)

	t.Run("insert and get", func(t *testing.T) {
		e := entry("a1", 1000)
		require.NoError(t, store.Insert(ctx, e))

		got, err := store.GetByID(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, e.Signature, got.Signature)
		assert.Equal(t, e.Topic, got.Topic)
		assert.JSONEq(t, string(e.Payload), string(got.Payload))
		assert.Equal(t, int64(1000), got.CreatedAt)
		assert.Nil(t, got.DeliveredAt)
	})

	t.Run("duplicate insert", func(t *testing.T) {
		err := store.Insert(ctx, entry("a1", 2000))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("invalid input", func(t *testing.T) {
		err := store.Insert(ctx, &domain.OutboxEntry{Topic: "x"})
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("pending and delivered", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, entry("b2", 3000)))
		require.NoError(t, store.Insert(ctx, entry("b1", 2500)))

		pending, err := store.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, "a1", pending[0].EnvelopeID)
		assert.Equal(t, "b1", pending[1].EnvelopeID)
		assert.Equal(t, "b2", pending[2].EnvelopeID)

		require.NoError(t, store.MarkDelivered(ctx, "a1", 5000))
		assert.ErrorIs(t, store.MarkDelivered(ctx, "a1", 6000), storage.ErrNotFound)

		got, err := store.GetByID(ctx, "a1")
		require.NoError(t, err)
		require.NotNil(t, got.DeliveredAt)
		assert.Equal(t, int64(5000), *got.DeliveredAt)

		pending, err = store.ListPending(ctx, 1)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "b1", pending[0].EnvelopeID)

		_, err = store.ListPending(ctx, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})
}

func TestOutboxStore_Publish(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewOutboxStore(pool)
	ctx := broker.WithSignature(context.Background(), "sig-publish")
	payload := []byte(`{"kind":"transaction"}`)

	require.NoError(t, store.Publish(ctx, "events:all", payload))
	// replays of the same envelope are absorbed
	require.NoError(t, store.Publish(ctx, "events:all", payload))
	require.NoError(t, store.Publish(ctx, "events:program:p", payload))

	got, err := store.GetByID(ctx, idhash.ComputeEnvelopeID("sig-publish", "events:all"))
	require.NoError(t, err)
	assert.Equal(t, "sig-publish", got.Signature)
	assert.JSONEq(t, string(payload), string(got.Payload))

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	err = store.Publish(context.Background(), "events:all", payload)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.NoError(t, store.Close())
}

func TestOutboxStore_PublishInstructionsOfOneTransaction(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewOutboxStore(pool)
	payload := []byte(`{"kind":"transaction"}`)

	for _, ix := range []int{0, 2} {
		ctx := broker.WithSignature(context.Background(), ingestion.InstructionSignature("sig-multi", ix))
		require.NoError(t, store.Publish(ctx, "events:all", payload))
	}

	pending, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.NotEqual(t, pending[0].EnvelopeID, pending[1].EnvelopeID)
}
