package solana

import "context"

// RPCClient defines the Solana RPC HTTP calls the router needs.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature. Returns nil, nil when not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (uint64, error)
}
