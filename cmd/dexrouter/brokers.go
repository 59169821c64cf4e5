package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-dex-router/internal/broker"
	"solana-dex-router/internal/config"
	"solana-dex-router/internal/logging"
	"solana-dex-router/internal/storage/migrations"
	"solana-dex-router/internal/storage/postgres"
)

// newBroker builds the configured publish target. The returned cleanup
// releases resources the broker does not own itself.
func newBroker(ctx context.Context, cfg config.Config, logger *zap.Logger) (broker.Broker, func(), error) {
	noop := func() {}

	switch cfg.Broker {
	case config.BrokerLog:
		return broker.NewLog(logger), noop, nil

	case config.BrokerRedis:
		b, err := broker.NewRedis(ctx, broker.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil

	case config.BrokerNATS:
		b, err := broker.NewNATS(broker.NATSOptions{
			URL:    cfg.NATSURL,
			Name:   "dexrouter-" + cfg.Instance,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil

	case config.BrokerWatermill:
		b, err := broker.NewWatermillNATS(broker.WatermillNATSOptions{
			URL:    cfg.NATSURL,
			Logger: logging.NewWatermillAdapter(logger),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil

	case config.BrokerPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate outbox: %w", err)
		}
		return postgres.NewOutboxStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}
