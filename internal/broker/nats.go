package broker

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSOptions configures the NATS broker.
type NATSOptions struct {
	URL  string
	Name string // connection name shown in server monitoring
	// SubjectPrefix is prepended to every subject, e.g. "dex" gives "dex.events.all".
	SubjectPrefix string
	Logger        *zap.Logger
}

// NATS publishes to core NATS subjects. Topic separators ':' are mapped to '.'
// so consumers can use subject wildcards such as "events.program.>".
type NATS struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
	closed atomic.Bool
}

// NewNATS connects to a NATS server. The client reconnects on its own.
func NewNATS(opts NATSOptions) (*NATS, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	name := opts.Name
	if name == "" {
		name = "dexrouter"
	}
	nc, err := nats.Connect(opts.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATS{nc: nc, prefix: opts.SubjectPrefix, logger: logger}, nil
}

// Subject returns the NATS subject a topic is published on.
func (n *NATS) Subject(topic string) string {
	return subjectFor(n.prefix, topic)
}

func subjectFor(prefix, topic string) string {
	subject := strings.ReplaceAll(topic, ":", ".")
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}

// Publish publishes payload on the subject derived from topic.
func (n *NATS) Publish(ctx context.Context, topic string, payload []byte) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.nc.Publish(n.Subject(topic), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	return n.nc.Drain()
}
