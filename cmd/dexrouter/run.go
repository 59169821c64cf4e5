package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-dex-router/internal/config"
	"solana-dex-router/internal/filter"
	"solana-dex-router/internal/ingestion"
	"solana-dex-router/internal/logging"
	"solana-dex-router/internal/metrics"
	"solana-dex-router/internal/observability"
	"solana-dex-router/internal/pipeline"
	"solana-dex-router/internal/publisher"
	"solana-dex-router/internal/solana"
	chstore "solana-dex-router/internal/storage/clickhouse"
	"solana-dex-router/internal/storage/migrations"
)

func runRouter(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer logger.Sync()

	// First signal drains the pipeline, a second one aborts.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	dec, err := newDecoder(cfg.DecodeTables)
	if err != nil {
		return err
	}

	filt := filter.New(cfg.Filter)
	if watch, _ := cmd.Flags().GetBool("watch"); watch && cfgFile != "" {
		if err := config.Watch(cfgFile, cmd.Flags(), filt, logger); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
	}

	m := metrics.New()

	b, closeBroker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer closeBroker()
	defer b.Close()

	pub := publisher.New(b, m, publisher.Options{
		TopicPrefix: cfg.TopicPrefix,
		Logger:      logger,
		ProgramName: dec.ProgramName,
	})

	source, closeSource, err := newSource(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer closeSource()

	p, err := pipeline.New(pipeline.Options{
		Source:            source,
		Filter:            filt,
		Decoder:           dec,
		Publisher:         pub,
		Metrics:           m,
		Logger:            logger,
		ProgressEvery:     cfg.ProgressEvery,
		HeartbeatInterval: cfg.HeartbeatInterval,
		StaleAfter:        cfg.StaleAfter,
	})
	if err != nil {
		return err
	}

	if cfg.HTTPAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		observability.RegisterExporter(reg, "", m)

		srv := observability.NewServer(observability.ServerOptions{
			Addr:     cfg.HTTPAddr,
			Gatherer: reg,
			Metrics:  m,
			State:    p,
			Logger:   logger,
		})
		srv.Start()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		}()
	}

	reporterDone := make(chan struct{})
	reporterCtx, stopReporter := context.WithCancel(ctx)
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			stopReporter()
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer conn.Close()

		reporter, err := observability.NewSnapshotReporter(chstore.NewSnapshotStore(conn), m, observability.ReporterOptions{
			Instance: cfg.Instance,
			Interval: cfg.SnapshotInterval,
			Logger:   logger,
		})
		if err != nil {
			stopReporter()
			return err
		}
		go func() {
			defer close(reporterDone)
			reporter.Run(reporterCtx)
		}()
	} else {
		close(reporterDone)
	}

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown requested", zap.String("signal", sig.String()))
			p.Shutdown()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			logger.Warn("second signal, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("router start",
		zap.String("source", cfg.Source),
		zap.String("broker", cfg.Broker),
		zap.Strings("programs", cfg.Programs),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Int("decode_tables_version", dec.Version()),
	)

	runErr := p.Run(ctx)

	stopReporter()
	<-reporterDone
	cancel()
	return runErr
}

// newSource builds the configured upstream.
func newSource(ctx context.Context, cfg config.Config, logger *zap.Logger) (ingestion.Source, func(), error) {
	if cfg.Source == config.SourceJSONL {
		return ingestion.NewJSONLSource(ingestion.JSONLSourceOptions{
			Path:            cfg.ReplayFile,
			EventsPerSecond: cfg.ReplayRate,
			Logger:          logger,
		}), func() {}, nil
	}

	ws, err := solana.NewWSClient(ctx, cfg.WSURL, nil)
	if err != nil {
		return nil, nil, err
	}

	var rpc solana.RPCClient
	if cfg.WSMode == ingestion.ModeLogs {
		rpc = solana.NewHTTPClient(cfg.RPCURL, solana.WithCommitment(cfg.Commitment))
	}

	src := ingestion.NewWSSource(ws, rpc, ingestion.WSSourceOptions{
		Programs:   cfg.Programs,
		Mode:       cfg.WSMode,
		Commitment: cfg.Commitment,
		Logger:     logger,
	})
	return src, func() { ws.Close() }, nil
}
