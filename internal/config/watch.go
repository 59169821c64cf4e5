package config

import (
	"errors"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"solana-dex-router/internal/filter"
)

// FilterTarget receives reloaded filter configurations.
type FilterTarget interface {
	Store(cfg filter.Config)
}

// Watch re-reads the filter settings whenever cfgFile changes and stores them
// into target. Invalid reloads are logged and the running settings kept.
// Flags still override file values on reload.
func Watch(cfgFile string, flags *pflag.FlagSet, target FilterTarget, logger *zap.Logger) error {
	if cfgFile == "" {
		return errors.New("watch requires a config file")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("config")

	v, err := newViper(cfgFile, flags)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := filterConfig(v)
		if err := cfg.Validate(); err != nil {
			logger.Warn("ignoring invalid filter reload", zap.String("file", e.Name), zap.Error(err))
			return
		}
		target.Store(cfg)
		logger.Info("filter reloaded",
			zap.String("file", e.Name),
			zap.Duration("max_age", cfg.MaxAge),
			zap.Uint64("min_value", cfg.MinValue),
			zap.Strings("allowed_programs", cfg.AllowedPrograms),
			zap.Float64("admission_fraction", cfg.AdmissionFraction),
		)
	})
	v.WatchConfig()
	return nil
}
