package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-dex-router/internal/jsoncodec"
	"solana-dex-router/internal/solana"
)

const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
)

// Subscription modes of the websocket source.
const (
	// ModeTransaction uses transactionSubscribe and receives full transactions.
	ModeTransaction = "transaction"
	// ModeLogs uses logsSubscribe and fetches each transaction over RPC.
	ModeLogs = "logs"
)

// WSSourceOptions configures a WSSource.
type WSSourceOptions struct {
	Programs   []string
	Mode       string // ModeTransaction (default) or ModeLogs
	Commitment string
	Buffer     int
	Logger     *zap.Logger
	Now        func() time.Time
	// RetryDelay is the first getTransaction retry delay in logs mode.
	RetryDelay time.Duration
}

// WSSource streams events from a Solana websocket endpoint, one subscription
// per watched program.
type WSSource struct {
	ws      solana.WSClient
	rpc     solana.RPCClient
	opts    WSSourceOptions
	watched map[string]struct{}
	logger  *zap.Logger
}

// NewWSSource creates a websocket source. rpc is only used in logs mode.
func NewWSSource(ws solana.WSClient, rpc solana.RPCClient, opts WSSourceOptions) *WSSource {
	if opts.Mode == "" {
		opts.Mode = ModeTransaction
	}
	if opts.Commitment == "" {
		opts.Commitment = solana.DefaultCommitment
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = baseRetryDelay
	}
	return &WSSource{
		ws:      ws,
		rpc:     rpc,
		opts:    opts,
		watched: programSet(opts.Programs),
		logger:  opts.Logger.Named("ws-source"),
	}
}

type taggedNotification struct {
	program string
	notif   solana.Notification
}

// Subscribe opens one subscription per program. Any subscription failure is
// returned and the client is closed.
func (s *WSSource) Subscribe(ctx context.Context) (Stream, error) {
	if len(s.opts.Programs) == 0 {
		return nil, fmt.Errorf("ws source: no programs to watch")
	}
	if s.opts.Mode != ModeTransaction && s.opts.Mode != ModeLogs {
		return nil, fmt.Errorf("ws source: unknown mode %q", s.opts.Mode)
	}
	if s.opts.Mode == ModeLogs && s.rpc == nil {
		return nil, fmt.Errorf("ws source: logs mode needs an RPC client")
	}

	// Some providers only support one address per subscription.
	channels := make(map[string]<-chan solana.Notification, len(s.opts.Programs))
	for _, program := range s.opts.Programs {
		var sub solana.Subscription
		if s.opts.Mode == ModeLogs {
			sub = solana.LogsSubscription([]string{program}, s.opts.Commitment)
		} else {
			sub = solana.TransactionSubscription([]string{program}, s.opts.Commitment)
		}
		ch, err := s.ws.Subscribe(ctx, sub)
		if err != nil {
			s.ws.Close()
			return nil, fmt.Errorf("subscribe %s: %w", program, err)
		}
		channels[program] = ch
		s.logger.Info("subscribed", zap.String("program", program), zap.String("mode", s.opts.Mode))
	}

	stream, sctx := newChanStream(ctx, s.opts.Buffer)
	stream.onClose = s.ws.Close

	merged := make(chan taggedNotification, s.opts.Buffer)
	var wg sync.WaitGroup
	for program, ch := range channels {
		wg.Add(1)
		go func(program string, ch <-chan solana.Notification) {
			defer wg.Done()
			for n := range ch {
				select {
				case merged <- taggedNotification{program: program, notif: n}:
				case <-sctx.Done():
					return
				}
			}
		}(program, ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	go s.run(sctx, stream, merged)
	return stream, nil
}

func (s *WSSource) run(ctx context.Context, stream *chanStream, merged <-chan taggedNotification) {
	for {
		select {
		case <-ctx.Done():
			stream.finish(nil)
			return
		case tn, ok := <-merged:
			if !ok {
				// every subscription channel closed: the client shut down
				stream.finish(s.ws.Err())
				return
			}
			if !s.process(ctx, stream, tn) {
				stream.finish(nil)
				return
			}
		}
	}
}

// process converts one notification into events. Returns false when the
// stream was cancelled mid-send.
func (s *WSSource) process(ctx context.Context, stream *chanStream, tn taggedNotification) bool {
	received := s.opts.Now()

	tx, err := s.transaction(ctx, tn.notif)
	if err != nil {
		s.logger.Warn("notification dropped", zap.Uint64("slot", tn.notif.Slot), zap.Error(err))
		return true
	}
	if tx == nil {
		return true
	}

	events, err := FlattenTransaction(tx, map[string]struct{}{tn.program: {}}, isConfirmed(s.opts.Commitment), received)
	if err != nil {
		s.logger.Warn("transaction dropped", zap.String("signature", tx.Signature()), zap.Error(err))
		return true
	}
	for _, e := range events {
		if !stream.send(ctx, e) {
			return false
		}
	}
	return true
}

func (s *WSSource) transaction(ctx context.Context, n solana.Notification) (*solana.Transaction, error) {
	if s.opts.Mode == ModeLogs {
		var v solana.LogsValue
		if err := jsoncodec.Unmarshal(n.Value, &v); err != nil {
			return nil, fmt.Errorf("decode logs value: %w", err)
		}
		// failed transactions carry no routable activity
		if v.Err != nil || v.Signature == "" {
			return nil, nil
		}
		tx, err := s.retryGetTransaction(ctx, v.Signature)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			s.logger.Debug("transaction not found", zap.String("signature", v.Signature))
		}
		return tx, nil
	}

	var v solana.TransactionValue
	if err := jsoncodec.Unmarshal(n.Value, &v); err != nil {
		return nil, fmt.Errorf("decode transaction value: %w", err)
	}
	tx := &v.Transaction
	if tx.Slot == 0 {
		tx.Slot = v.Slot
	}
	if tx.Slot == 0 {
		tx.Slot = n.Slot
	}
	if len(tx.Transaction.Signatures) == 0 && v.Signature != "" {
		tx.Transaction.Signatures = []string{v.Signature}
	}
	return tx, nil
}

// retryGetTransaction fetches a transaction with exponential backoff retry.
func (s *WSSource) retryGetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		tx, err := s.rpc.GetTransaction(ctx, signature)
		if err == nil {
			return tx, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := s.opts.RetryDelay * time.Duration(1<<attempt)
		s.logger.Debug("retrying getTransaction",
			zap.String("signature", signature),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("getTransaction %s: %w", signature, lastErr)
}
