package solana

import (
	"fmt"

	"github.com/mr-tron/base58"

	"solana-dex-router/internal/domain"
)

// Transaction is a transaction in "json" encoding as returned by getTransaction
// and carried by transactionNotification.
type Transaction struct {
	Slot        uint64              `json:"slot"`
	BlockTime   *int64              `json:"blockTime"` // seconds, may be absent
	Meta        *TransactionMeta    `json:"meta"`
	Transaction TransactionEnvelope `json:"transaction"`
}

// TransactionEnvelope holds signatures and the message.
type TransactionEnvelope struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

// Message is a compiled transaction message.
type Message struct {
	AccountKeys  []string              `json:"accountKeys"`
	Header       MessageHeader         `json:"header"`
	Instructions []CompiledInstruction `json:"instructions"`
}

// MessageHeader describes signer and writable account ranges.
type MessageHeader struct {
	NumRequiredSignatures       int `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   int `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts int `json:"numReadonlyUnsignedAccounts"`
}

// CompiledInstruction references accounts by index. Data is base58.
type CompiledInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

// TransactionMeta contains execution metadata.
type TransactionMeta struct {
	Err             interface{}      `json:"err"`
	Fee             uint64           `json:"fee"`
	PreBalances     []uint64         `json:"preBalances"`
	PostBalances    []uint64         `json:"postBalances"`
	LogMessages     []string         `json:"logMessages"`
	LoadedAddresses *LoadedAddresses `json:"loadedAddresses"`
}

// LoadedAddresses are accounts loaded from address lookup tables.
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// Signature returns the first signature, or "".
func (t *Transaction) Signature() string {
	if len(t.Transaction.Signatures) == 0 {
		return ""
	}
	return t.Transaction.Signatures[0]
}

// Failed reports whether execution returned an error.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// AccountMetas resolves every account of the transaction with writable and
// signer flags derived from the message header. Static keys come first,
// followed by loaded writable and loaded readonly addresses.
func (t *Transaction) AccountMetas() []domain.InstructionAccount {
	msg := t.Transaction.Message
	h := msg.Header
	static := len(msg.AccountKeys)

	metas := make([]domain.InstructionAccount, 0, static)
	for i, key := range msg.AccountKeys {
		signer := i < h.NumRequiredSignatures
		var writable bool
		if signer {
			writable = i < h.NumRequiredSignatures-h.NumReadonlySignedAccounts
		} else {
			writable = i < static-h.NumReadonlyUnsignedAccounts
		}
		metas = append(metas, domain.InstructionAccount{Pubkey: key, IsWritable: writable, IsSigner: signer})
	}

	if t.Meta != nil && t.Meta.LoadedAddresses != nil {
		for _, key := range t.Meta.LoadedAddresses.Writable {
			metas = append(metas, domain.InstructionAccount{Pubkey: key, IsWritable: true})
		}
		for _, key := range t.Meta.LoadedAddresses.Readonly {
			metas = append(metas, domain.InstructionAccount{Pubkey: key})
		}
	}
	return metas
}

// ResolvedInstruction is a top-level instruction with accounts resolved.
type ResolvedInstruction struct {
	Index     int
	ProgramID string
	Accounts  []domain.InstructionAccount
	Data      []byte
}

// Instructions resolves every top-level instruction. An instruction with an
// out-of-range index or undecodable data fails the whole call.
func (t *Transaction) Instructions() ([]ResolvedInstruction, error) {
	metas := t.AccountMetas()
	compiled := t.Transaction.Message.Instructions

	out := make([]ResolvedInstruction, 0, len(compiled))
	for i, ix := range compiled {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(metas) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range", i, ix.ProgramIDIndex)
		}
		accounts := make([]domain.InstructionAccount, len(ix.Accounts))
		for j, idx := range ix.Accounts {
			if idx < 0 || idx >= len(metas) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range", i, idx)
			}
			accounts[j] = metas[idx]
		}
		var data []byte
		if ix.Data != "" {
			decoded, err := base58.Decode(ix.Data)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: decode data: %w", i, err)
			}
			data = decoded
		}
		out = append(out, ResolvedInstruction{
			Index:     i,
			ProgramID: metas[ix.ProgramIDIndex].Pubkey,
			Accounts:  accounts,
			Data:      data,
		})
	}
	return out, nil
}

// FeePayerDelta returns the absolute lamport change of the fee payer.
func (t *Transaction) FeePayerDelta() uint64 {
	if t.Meta == nil || len(t.Meta.PreBalances) == 0 || len(t.Meta.PostBalances) == 0 {
		return 0
	}
	pre, post := t.Meta.PreBalances[0], t.Meta.PostBalances[0]
	if pre > post {
		return pre - post
	}
	return post - pre
}
