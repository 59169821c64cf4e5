package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-dex-router/internal/jsoncodec"
)

// ErrReconnectExhausted is reported by Err when the client gave up reconnecting.
var ErrReconnectExhausted = errors.New("websocket reconnect attempts exhausted")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects; 0 retries forever.
	MaxReconnectAttempts int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// BufferSize is the notification channel capacity per subscription.
	BufferSize int
	// Logger receives connection lifecycle logs.
	Logger *zap.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		PingInterval:         30 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
		SubscribeTimeout:     30 * time.Second,
		BufferSize:           10000,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to channel
	subs   map[int64]chan Notification
	subsMu sync.RWMutex

	// active stores requests for resubscription after reconnect
	active   map[int64]Subscription
	activeMu sync.RWMutex

	// pendingSubs maps request ID to a subscription awaiting its ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

type subscribeResult struct {
	id  int64
	err error
}

// pendingSub is a subscribe request in flight. The read loop maps notify
// under the confirmed ID before signalling confirm, so a notification that
// directly follows the confirmation always finds its channel.
type pendingSub struct {
	sub     Subscription
	notify  chan Notification
	confirm chan subscribeResult

	// resub replaces the mapping held under oldID.
	resub bool
	oldID int64
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger.Named("ws"),
		subs:        make(map[int64]chan Notification),
		active:      make(map[int64]Subscription),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Subscribe opens a subscription and returns its notification channel.
func (c *WSClientImpl) Subscribe(ctx context.Context, sub Subscription) (<-chan Notification, error) {
	// Blocking send ensures no event loss; buffer absorbs bursts
	ch := make(chan Notification, c.config.BufferSize)
	subID, err := c.subscribe(ctx, &pendingSub{sub: sub, notify: ch})
	if err != nil {
		return nil, err
	}

	c.logger.Info("subscribed", zap.String("method", sub.Method), zap.Int64("subscription", subID))
	return ch, nil
}

// subscribe sends the request and waits until the read loop has mapped the
// confirmed subscription ID to p.notify.
func (c *WSClientImpl) subscribe(ctx context.Context, p *pendingSub) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  p.sub.Method,
		Params:  p.sub.Params,
	}

	p.confirm = make(chan subscribeResult, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = p
	c.pendingSubsMu.Unlock()

	if err := c.writeJSON(req); err != nil {
		c.dropPending(reqID)
		return 0, fmt.Errorf("write %s: %w", p.sub.Method, err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-p.confirm:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		if res.err != nil {
			return 0, fmt.Errorf("%s: %w", p.sub.Method, res.err)
		}
		return res.id, nil
	case <-timer.C:
		c.abandon(reqID, p)
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		c.abandon(reqID, p)
		return 0, ctx.Err()
	}
}

func (c *WSClientImpl) dropPending(reqID uint64) {
	c.pendingSubsMu.Lock()
	delete(c.pendingSubs, reqID)
	c.pendingSubsMu.Unlock()
}

// abandon drops a request nobody waits for anymore. A confirmation that
// raced the caller was already mapped and is unmapped again, except for
// resubscriptions whose channel still has a reader.
func (c *WSClientImpl) abandon(reqID uint64, p *pendingSub) {
	c.dropPending(reqID)
	select {
	case res, ok := <-p.confirm:
		if ok && res.err == nil && !p.resub {
			c.unmap(res.id)
		}
	default:
	}
}

// mapSubscription routes notifications for id to p.notify.
func (c *WSClientImpl) mapSubscription(id int64, p *pendingSub) {
	c.subsMu.Lock()
	if p.resub {
		delete(c.subs, p.oldID)
	}
	c.subs[id] = p.notify
	c.subsMu.Unlock()

	c.activeMu.Lock()
	if p.resub {
		delete(c.active, p.oldID)
	}
	c.active[id] = p.sub
	c.activeMu.Unlock()
}

func (c *WSClientImpl) unmap(id int64) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()

	c.activeMu.Lock()
	delete(c.active, id)
	c.activeMu.Unlock()
}

func (c *WSClientImpl) writeJSON(v interface{}) error {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Done is closed when the client has shut down.
func (c *WSClientImpl) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error, nil after a clean Close.
func (c *WSClientImpl) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *WSClientImpl) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Close closes the WebSocket connection and every subscription channel.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// readers must be gone before channels close
	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("websocket read failed, reconnecting", zap.Error(err))

			if err := c.reconnect(); err != nil {
				if c.closed.Load() {
					return
				}
				c.logger.Error("websocket gave up", zap.Error(err))
				c.setErr(err)
				go c.Close()
				return
			}
			continue
		}

		c.handleMessage(message)
	}
}

// reconnect redials with exponential backoff and resubscribes.
func (c *WSClientImpl) reconnect() error {
	delay := c.config.ReconnectDelay
	var lastErr error

	for attempt := 1; c.config.MaxReconnectAttempts <= 0 || attempt <= c.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return fmt.Errorf("client closed")
		case <-time.After(delay):
		}

		// Close existing connection
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		lastErr = c.connect(ctx)
		cancel()
		if lastErr == nil {
			c.logger.Info("websocket reconnected", zap.Int("attempt", attempt))
			// Resubscribe in the background; confirmations arrive through this read loop.
			go c.resubscribeAll()
			return nil
		}
		c.logger.Warn("websocket reconnect failed", zap.Int("attempt", attempt), zap.Error(lastErr))

		// Increase delay for next reconnect (exponential backoff)
		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}

	return fmt.Errorf("%w: %v", ErrReconnectExhausted, lastErr)
}

// resubscribeAll resubscribes to all active subscriptions after reconnect.
// Each confirmation moves the existing channel to the new subscription ID.
func (c *WSClientImpl) resubscribeAll() {
	c.activeMu.RLock()
	subs := make(map[int64]Subscription, len(c.active))
	for id, s := range c.active {
		subs[id] = s
	}
	c.activeMu.RUnlock()

	for oldSubID, sub := range subs {
		c.subsMu.RLock()
		ch := c.subs[oldSubID]
		c.subsMu.RUnlock()
		if ch == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.subscribe(ctx, &pendingSub{sub: sub, notify: ch, resub: true, oldID: oldSubID})
		cancel()

		if err != nil {
			// Failed to resubscribe, keep old mapping
			c.logger.Warn("resubscribe failed", zap.String("method", sub.Method), zap.Error(err))
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsMessage
	if err := jsoncodec.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("unparseable message", zap.Error(err))
		return
	}

	switch {
	case msg.Method != "" && msg.Params != nil:
		if strings.HasSuffix(msg.Method, "Notification") {
			c.handleNotification(msg.Method, msg.Params)
		}
	case msg.ID != nil:
		c.handleResponse(*msg.ID, msg.Result, msg.Error)
	}
}

// handleResponse resolves a pending subscription request. The mapping is
// installed while pendingSubsMu is held, so abandon either prevents it or
// observes it.
func (c *WSClientImpl) handleResponse(id uint64, result json.RawMessage, rpcErr *wsError) {
	c.pendingSubsMu.Lock()
	defer c.pendingSubsMu.Unlock()

	p, ok := c.pendingSubs[id]
	if !ok {
		return
	}
	delete(c.pendingSubs, id)

	var res subscribeResult
	if rpcErr != nil {
		res.err = rpcErr
	} else if err := jsoncodec.Unmarshal(result, &res.id); err != nil {
		res.err = fmt.Errorf("parse subscription id: %w", err)
	} else {
		c.mapSubscription(res.id, p)
	}

	select {
	case p.confirm <- res:
	default:
	}
}

// handleNotification dispatches a notification to its subscriber.
func (c *WSClientImpl) handleNotification(method string, params *wsNotificationParams) {
	n := Notification{
		Subscription: params.Subscription,
		Method:       method,
		Value:        params.Result,
	}

	var wrapped wsResultWrapper
	if err := jsoncodec.Unmarshal(params.Result, &wrapped); err == nil {
		if wrapped.Context != nil {
			n.Slot = wrapped.Context.Slot
		} else {
			n.Slot = wrapped.Slot
		}
		if len(wrapped.Value) > 0 {
			n.Value = wrapped.Value
		}
	}

	c.subsMu.RLock()
	ch, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()

	if ok {
		// Block until we can send - never drop events
		select {
		case ch <- n:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// reader will handle reconnect
					c.logger.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// wsMessage covers responses and notifications.
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id"`
	Result  json.RawMessage       `json:"result"`
	Error   *wsError              `json:"error"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsResultWrapper struct {
	Context *wsContext      `json:"context"`
	Slot    uint64          `json:"slot"`
	Value   json.RawMessage `json:"value"`
}

type wsContext struct {
	Slot uint64 `json:"slot"`
}
