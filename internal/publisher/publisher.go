// Package publisher fans admitted events out to the broker, one envelope per
// derived topic.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-dex-router/internal/broker"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/jsoncodec"
	"solana-dex-router/internal/solana"
)

// Recorder counts publish attempts.
type Recorder interface {
	RecordPublishSuccess()
	RecordPublishFailure()
}

// Options configures a Publisher.
type Options struct {
	TopicPrefix string
	Logger      *zap.Logger
	// ProgramName resolves a human-readable program name for payloads.
	ProgramName func(programID string) string
	// IsWallet reports whether an account can sign; defaults to an ed25519
	// curve check.
	IsWallet func(account string) bool
	Now      func() time.Time
}

// Outcome summarizes one event's fan-out.
type Outcome struct {
	Topics    []string
	Succeeded int
	Failed    int
}

// Publisher delivers admitted events to every topic derived from them.
// Each topic is attempted independently; failures are counted and logged,
// never returned.
type Publisher struct {
	broker      broker.Broker
	recorder    Recorder
	prefix      string
	logger      *zap.Logger
	ids         *ulidSource
	programName func(string) string
	isWallet    func(string) bool
	now         func() time.Time
}

// New creates a Publisher writing to b and counting attempts in rec.
func New(b broker.Broker, rec Recorder, opts Options) *Publisher {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IsWallet == nil {
		opts.IsWallet = solana.IsOnCurve
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		broker:      b,
		recorder:    rec,
		prefix:      opts.TopicPrefix,
		logger:      opts.Logger.Named("publisher"),
		ids:         newULIDSource(),
		programName: opts.ProgramName,
		isWallet:    opts.IsWallet,
		now:         opts.Now,
	}
}

// Prefix returns the topic prefix.
func (p *Publisher) Prefix() string {
	return p.prefix
}

// Envelopes builds the payload once and returns one envelope per topic.
func (p *Publisher) Envelopes(e *domain.RawEvent, parsed *domain.ParsedInstruction) ([]domain.PublishEnvelope, error) {
	payload, err := jsoncodec.Marshal(p.buildPayload(e, parsed))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	topics := Topics(p.prefix, e)
	envs := make([]domain.PublishEnvelope, len(topics))
	for i, topic := range topics {
		envs[i] = domain.PublishEnvelope{Topic: topic, Payload: payload, Signature: e.Signature}
	}
	return envs, nil
}

// Publish delivers e to each of its topics. Every attempt is counted as a
// success or a failure.
func (p *Publisher) Publish(ctx context.Context, e *domain.RawEvent, parsed *domain.ParsedInstruction) Outcome {
	envs, err := p.Envelopes(e, parsed)
	if err != nil {
		out := Outcome{Topics: Topics(p.prefix, e)}
		for _, topic := range out.Topics {
			p.fail(e.Signature, topic, err)
			out.Failed++
		}
		return out
	}

	ctx = broker.WithSignature(ctx, e.Signature)
	out := Outcome{Topics: make([]string, 0, len(envs))}
	for _, env := range envs {
		out.Topics = append(out.Topics, env.Topic)
		if err := p.broker.Publish(ctx, env.Topic, env.Payload); err != nil {
			p.fail(env.Signature, env.Topic, err)
			out.Failed++
			continue
		}
		if p.recorder != nil {
			p.recorder.RecordPublishSuccess()
		}
		out.Succeeded++
	}
	return out
}

func (p *Publisher) fail(signature, topic string, err error) {
	if p.recorder != nil {
		p.recorder.RecordPublishFailure()
	}
	p.logger.Warn("publish failed",
		zap.String("signature", signature),
		zap.String("topic", topic),
		zap.Error(err))
}
