package broker

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// MetadataSignature is the watermill metadata key carrying the event signature
// when the caller context provides one.
const MetadataSignature = "signature"

type signatureKey struct{}

// WithSignature attaches an event signature to ctx for brokers that carry metadata.
func WithSignature(ctx context.Context, signature string) context.Context {
	return context.WithValue(ctx, signatureKey{}, signature)
}

// SignatureFrom returns the signature attached by WithSignature.
func SignatureFrom(ctx context.Context) (string, bool) {
	sig, ok := ctx.Value(signatureKey{}).(string)
	return sig, ok && sig != ""
}

// Watermill publishes through any watermill message.Publisher.
type Watermill struct {
	pub     message.Publisher
	subject func(topic string) string
}

// NewWatermill wraps pub. Topics are passed through unchanged.
func NewWatermill(pub message.Publisher) *Watermill {
	return &Watermill{pub: pub}
}

// NewGoChannel creates an in-process watermill broker. The returned GoChannel
// can be used to subscribe to published topics.
func NewGoChannel(logger watermill.LoggerAdapter) (*Watermill, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	return NewWatermill(pubSub), pubSub
}

// WatermillNATSOptions configures the watermill NATS transport.
type WatermillNATSOptions struct {
	URL string
	// SubjectPrefix is prepended to every subject, as for NATSOptions.
	SubjectPrefix string
	Logger        watermill.LoggerAdapter
}

// NewWatermillNATS publishes watermill messages on core NATS. Message
// metadata, the signature included, travels in NATS headers and subjects
// follow the same mapping as the plain NATS broker.
func NewWatermillNATS(opts WatermillNATSOptions) (*Watermill, error) {
	logger := opts.Logger
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:       opts.URL,
		Marshaler: &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watermill NATS publisher: %w", err)
	}

	w := NewWatermill(pub)
	w.subject = func(topic string) string { return subjectFor(opts.SubjectPrefix, topic) }
	return w, nil
}

// Publish wraps payload in a message with a ULID id and publishes it on topic.
func (w *Watermill) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	if sig, ok := SignatureFrom(ctx); ok {
		msg.Metadata.Set(MetadataSignature, sig)
	}
	target := topic
	if w.subject != nil {
		target = w.subject(topic)
	}
	if err := w.pub.Publish(target, msg); err != nil {
		return fmt.Errorf("watermill publish %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (w *Watermill) Close() error {
	return w.pub.Close()
}
