package broker

import (
	"context"

	"go.uber.org/zap"
)

// Log is a broker that only logs deliveries. Used for dry runs.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging broker.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("dryrun")}
}

// Publish logs the topic and payload size.
func (l *Log) Publish(ctx context.Context, topic string, payload []byte) error {
	fields := []zap.Field{zap.String("topic", topic), zap.Int("bytes", len(payload))}
	if sig, ok := SignatureFrom(ctx); ok {
		fields = append(fields, zap.String("signature", sig))
	}
	l.logger.Debug("publish", fields...)
	return nil
}

// Close is a no-op.
func (l *Log) Close() error {
	return nil
}
