// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"solana-dex-router/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Unknown signatures return nil, nil like the real client.
type RPCClient struct {
	mu           sync.Mutex
	transactions map[string]*solana.Transaction
	slot         uint64
	calls        int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{transactions: make(map[string]*solana.Transaction)}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.transactions[signature], nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, nil
}

// AddTransaction stores tx under its first signature.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions[tx.Signature()] = tx
	if tx.Slot > c.slot {
		c.slot = tx.Slot
	}
}

// Calls returns how many GetTransaction calls were made.
func (c *RPCClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
