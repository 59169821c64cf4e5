package domain

// EventKind identifies which upstream record produced a RawEvent.
type EventKind string

const (
	EventKindTransaction EventKind = "transaction"
	EventKindAccount     EventKind = "account"
	EventKindSlot        EventKind = "slot"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	return k == EventKindTransaction || k == EventKindAccount || k == EventKindSlot
}

// RawEvent is one unit of upstream blockchain activity.
// Signature is unique per logical event; redelivery of the same signature
// must yield the same admission decision. Events flattened from a transaction
// use "<tx signature>:<instruction index>" and keep the bare transaction
// signature in TxSignature.
type RawEvent struct {
	Kind        EventKind            `json:"kind"`
	Signature   string               `json:"signature"`
	TxSignature string               `json:"tx_signature,omitempty"`
	Slot        uint64               `json:"slot"`
	Timestamp   int64                `json:"timestamp"` // Unix timestamp in milliseconds
	ProgramID   string               `json:"program_id"`
	Account     string               `json:"account"`
	Value       uint64               `json:"value"` // lamports or base units, 0 if not applicable
	BlockHeight uint64               `json:"block_height"`
	IsConfirmed bool                 `json:"is_confirmed"`
	Accounts    []InstructionAccount `json:"accounts,omitempty"`
	Data        []byte               `json:"data,omitempty"`
}

// AgeMs returns the event age in milliseconds relative to nowMs.
func (e *RawEvent) AgeMs(nowMs int64) int64 {
	return nowMs - e.Timestamp
}
