package publisher

import (
	"github.com/mr-tron/base58"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/domain"
)

// Payload is the JSON document delivered to every topic of an event.
type Payload struct {
	ID          string           `json:"id"`
	Kind        domain.EventKind `json:"kind"`
	Signature   string           `json:"signature"`
	TxSignature string           `json:"tx_signature,omitempty"`
	Slot        uint64           `json:"slot"`
	Timestamp   int64            `json:"timestamp"`
	ProgramID   string           `json:"program_id"`
	Account     string           `json:"account"`
	Value       uint64           `json:"value"`
	BlockHeight uint64           `json:"block_height"`
	IsConfirmed bool             `json:"is_confirmed"`

	Instruction Instruction `json:"instruction"`

	TokenMint       string `json:"token_mint,omitempty"`
	PoolID          string `json:"pool_id,omitempty"`
	Creator         string `json:"creator,omitempty"`
	CreatorIsWallet bool   `json:"creator_is_wallet"`

	Class          string `json:"class"`
	IsPoolCreation bool   `json:"is_pool_creation"`
	IsSwap         bool   `json:"is_swap"`
	IsLiquidity    bool   `json:"is_liquidity_operation"`

	PublishedAt int64 `json:"published_at"` // ms
}

// Instruction is the decoded instruction as carried in a Payload.
// Data is base58 encoded.
type Instruction struct {
	ProgramID string            `json:"program_id"`
	Program   string            `json:"program,omitempty"`
	Kind      string            `json:"instruction_kind"`
	Accounts  []string          `json:"accounts"`
	Data      string            `json:"data"`
	Roles     map[string]string `json:"roles"`
}

func (p *Publisher) buildPayload(e *domain.RawEvent, parsed *domain.ParsedInstruction) Payload {
	now := p.now()

	accounts := parsed.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	roles := parsed.Roles
	if roles == nil {
		roles = map[string]string{}
	}

	pl := Payload{
		ID:          p.ids.next(now),
		Kind:        e.Kind,
		Signature:   e.Signature,
		TxSignature: e.TxSignature,
		Slot:        e.Slot,
		Timestamp:   e.Timestamp,
		ProgramID:   e.ProgramID,
		Account:     e.Account,
		Value:       e.Value,
		BlockHeight: e.BlockHeight,
		IsConfirmed: e.IsConfirmed,
		Instruction: Instruction{
			ProgramID: parsed.ProgramID,
			Kind:      parsed.Kind,
			Accounts:  accounts,
			Data:      base58.Encode(parsed.Data),
			Roles:     roles,
		},
		Class:          decoder.Classify(parsed.Kind),
		IsPoolCreation: decoder.IsPoolCreation(parsed.Kind),
		IsSwap:         decoder.IsSwap(parsed.Kind),
		IsLiquidity:    decoder.IsLiquidityOperation(parsed.Kind),
		PublishedAt:    now.UnixMilli(),
	}
	if p.programName != nil {
		pl.Instruction.Program = p.programName(parsed.ProgramID)
	}

	if mint, ok := decoder.ExtractTokenMint(parsed); ok {
		pl.TokenMint = mint
	}
	if pool, ok := decoder.ExtractPoolID(parsed); ok {
		pl.PoolID = pool
	}
	if creator, ok := decoder.ExtractCreator(parsed); ok {
		pl.Creator = creator
		pl.CreatorIsWallet = p.isWallet(creator)
	}
	return pl
}
