// Package broker adapts downstream pub/sub systems to the narrow publish
// contract used by the fan-out publisher.
package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing through a closed broker.
var ErrClosed = errors.New("broker closed")

// Broker delivers a payload to a named topic. Implementations must be safe for
// concurrent use. Delivery is best effort.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
