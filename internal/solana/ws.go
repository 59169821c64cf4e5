package solana

import (
	"context"
	"encoding/json"
	"strings"
)

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// Subscribe opens a JSON-RPC subscription. The returned channel is closed
	// when the client closes; Err then reports why.
	Subscribe(ctx context.Context, sub Subscription) (<-chan Notification, error)

	// Done is closed when the client has shut down.
	Done() <-chan struct{}

	// Err returns the error that terminated the client, nil after a clean Close.
	Err() error

	// Close closes the WebSocket connection.
	Close() error
}

// Subscription is a JSON-RPC pubsub request, e.g. logsSubscribe.
type Subscription struct {
	Method string
	Params []interface{}
}

// NotificationMethod returns the method name of notifications for the subscription.
func (s Subscription) NotificationMethod() string {
	return strings.TrimSuffix(s.Method, "Subscribe") + "Notification"
}

// UnsubscribeMethod returns the method used to cancel the subscription.
func (s Subscription) UnsubscribeMethod() string {
	return strings.TrimSuffix(s.Method, "Subscribe") + "Unsubscribe"
}

// LogsSubscription subscribes to logs mentioning any of the given program IDs.
func LogsSubscription(mentions []string, commitment string) Subscription {
	filter := make(map[string]interface{})
	if len(mentions) > 0 {
		filter["mentions"] = mentions
	} else {
		filter["all"] = nil
	}
	return Subscription{
		Method: "logsSubscribe",
		Params: []interface{}{filter, map[string]string{"commitment": commitment}},
	}
}

// TransactionSubscription subscribes to full transactions touching any of the
// given accounts. This is the enhanced transactionSubscribe offered by some RPC
// providers, not part of the base Solana API.
func TransactionSubscription(accountInclude []string, commitment string) Subscription {
	return Subscription{
		Method: "transactionSubscribe",
		Params: []interface{}{
			map[string]interface{}{
				"accountInclude": accountInclude,
				"failed":         false,
				"vote":           false,
			},
			map[string]interface{}{
				"commitment":                     commitment,
				"encoding":                       "json",
				"transactionDetails":             "full",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}
}

// Notification is one subscription message.
type Notification struct {
	Subscription int64
	Method       string
	Slot         uint64          // context slot, or the result's own slot field
	Value        json.RawMessage // result.value when present, else the whole result
}

// LogsValue is the value of a logsNotification.
type LogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}

// TransactionValue is the value of a transactionNotification.
type TransactionValue struct {
	Signature   string      `json:"signature"`
	Slot        uint64      `json:"slot"`
	Transaction Transaction `json:"transaction"`
}
