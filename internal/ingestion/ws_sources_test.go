package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"solana-dex-router/internal/solana"
	"solana-dex-router/internal/solana/stub"
)

// fakeWS hands out one channel per subscription and closes them all on
// shutdown, like the real client.
type fakeWS struct {
	mu      sync.Mutex
	subs    []solana.Subscription
	chans   []chan solana.Notification
	failOn  int // 1-based subscription number to fail, 0 for none
	done    chan struct{}
	err     error
	closed  bool
	closeMu sync.Once
}

func newFakeWS() *fakeWS {
	return &fakeWS{done: make(chan struct{})}
}

func (f *fakeWS) Subscribe(_ context.Context, sub solana.Subscription) (<-chan solana.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	if f.failOn == len(f.subs) {
		return nil, errors.New("subscribe rejected")
	}
	ch := make(chan solana.Notification, 16)
	f.chans = append(f.chans, ch)
	return ch, nil
}

func (f *fakeWS) Done() <-chan struct{} { return f.done }

func (f *fakeWS) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeWS) Close() error {
	f.closeMu.Do(func() {
		f.mu.Lock()
		f.closed = true
		for _, ch := range f.chans {
			close(ch)
		}
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

// fail terminates the client with err.
func (f *fakeWS) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.Close()
}

func (f *fakeWS) notify(t *testing.T, i int, value interface{}, slot uint64) {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.mu.Lock()
	ch := f.chans[i]
	f.mu.Unlock()
	ch <- solana.Notification{Slot: slot, Value: raw}
}

func TestWSSource_TransactionMode(t *testing.T) {
	ws := newFakeWS()
	src := NewWSSource(ws, nil, WSSourceOptions{Programs: []string{"prog", "other"}})

	stream, err := src.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if len(ws.subs) != 2 || ws.subs[0].Method != "transactionSubscribe" {
		t.Fatalf("expected two transactionSubscribe calls, got %+v", ws.subs)
	}

	tx := testTransaction("sig-tx")
	tx.Slot = 0
	ws.notify(t, 0, solana.TransactionValue{Signature: "sig-tx", Slot: 88, Transaction: *tx}, 88)

	select {
	case e := <-stream.Events():
		if e.Signature != "sig-tx:0" || e.TxSignature != "sig-tx" || e.ProgramID != "prog" || e.Slot != 88 {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	select {
	case e := <-stream.Events():
		if e.ProgramID != "prog" || e.Signature != "sig-tx:2" {
			t.Errorf("unexpected second event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for second event")
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !ws.closed {
		t.Error("expected Close to close the websocket client")
	}
	for range stream.Events() {
	}
	if stream.Err() != nil {
		t.Errorf("expected nil error after Close, got %v", stream.Err())
	}
}

func TestWSSource_LogsModeFetchesTransaction(t *testing.T) {
	ws := newFakeWS()
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(testTransaction("sig-logs"))

	src := NewWSSource(ws, rpc, WSSourceOptions{Programs: []string{"prog"}, Mode: ModeLogs})
	stream, err := src.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	if ws.subs[0].Method != "logsSubscribe" {
		t.Fatalf("expected logsSubscribe, got %s", ws.subs[0].Method)
	}

	// failed transaction: skipped without an RPC call
	ws.notify(t, 0, solana.LogsValue{Signature: "sig-failed", Err: "boom"}, 1)
	// unknown signature: RPC returns nil, skipped
	ws.notify(t, 0, solana.LogsValue{Signature: "sig-missing"}, 2)
	ws.notify(t, 0, solana.LogsValue{Signature: "sig-logs"}, 77)

	select {
	case e := <-stream.Events():
		if e.Signature != "sig-logs:0" || e.TxSignature != "sig-logs" || e.Slot != 77 {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	if rpc.Calls() != 2 {
		t.Errorf("expected 2 getTransaction calls, got %d", rpc.Calls())
	}
}

func TestWSSource_TransportErrorEndsStream(t *testing.T) {
	ws := newFakeWS()
	src := NewWSSource(ws, nil, WSSourceOptions{Programs: []string{"prog"}})
	stream, err := src.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	defer stream.Close()

	ws.fail(solana.ErrReconnectExhausted)

	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Fatal("expected stream to end")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stream end")
	}
	if !errors.Is(stream.Err(), solana.ErrReconnectExhausted) {
		t.Errorf("expected transport error, got %v", stream.Err())
	}
}

func TestWSSource_SubscribeFailures(t *testing.T) {
	ws := newFakeWS()
	ws.failOn = 2
	src := NewWSSource(ws, nil, WSSourceOptions{Programs: []string{"a", "b"}})
	if _, err := src.Subscribe(context.Background()); err == nil {
		t.Error("expected subscribe error")
	}
	if !ws.closed {
		t.Error("expected client closed after subscribe failure")
	}

	if _, err := NewWSSource(newFakeWS(), nil, WSSourceOptions{}).Subscribe(context.Background()); err == nil {
		t.Error("expected error with no programs")
	}
	if _, err := NewWSSource(newFakeWS(), nil, WSSourceOptions{Programs: []string{"a"}, Mode: ModeLogs}).Subscribe(context.Background()); err == nil {
		t.Error("expected error for logs mode without RPC")
	}
}
