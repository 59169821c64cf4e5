package ingestion

import (
	"fmt"
	"time"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/solana"
)

// FlattenTransaction turns every top-level instruction of a watched program
// into a RawEvent. Failed transactions yield nothing. Each event is identified
// by the transaction signature and its instruction index.
func FlattenTransaction(tx *solana.Transaction, watched map[string]struct{}, confirmed bool, received time.Time) ([]domain.RawEvent, error) {
	if tx == nil || tx.Failed() {
		return nil, nil
	}
	ixs, err := tx.Instructions()
	if err != nil {
		return nil, err
	}

	ts := received.UnixMilli()
	if tx.BlockTime != nil && *tx.BlockTime > 0 {
		ts = *tx.BlockTime * 1000
	}
	value := tx.FeePayerDelta()
	sig := tx.Signature()

	var events []domain.RawEvent
	for i, ix := range ixs {
		if _, ok := watched[ix.ProgramID]; !ok {
			continue
		}
		events = append(events, domain.RawEvent{
			Kind:        domain.EventKindTransaction,
			Signature:   InstructionSignature(sig, i),
			TxSignature: sig,
			Slot:        tx.Slot,
			Timestamp:   ts,
			ProgramID:   ix.ProgramID,
			Account:     primaryAccount(ix.ProgramID, ix.Accounts),
			Value:       value,
			IsConfirmed: confirmed,
			Accounts:    ix.Accounts,
			Data:        ix.Data,
		})
	}
	return events, nil
}

// InstructionSignature is the event identity of the top-level instruction at
// index within the transaction sig.
func InstructionSignature(sig string, index int) string {
	return fmt.Sprintf("%s:%d", sig, index)
}

// primaryAccount picks the account an event is routed under: the first
// writable non-signer account that is not a well-known program, else the
// first signer, else the first account that is neither well-known nor the
// program itself. Only an instruction without such an account yields "".
func primaryAccount(programID string, accounts []domain.InstructionAccount) string {
	for _, a := range accounts {
		if a.IsWritable && !a.IsSigner && !decoder.IsWellKnownAccount(a.Pubkey) {
			return a.Pubkey
		}
	}
	for _, a := range accounts {
		if a.IsSigner {
			return a.Pubkey
		}
	}
	for _, a := range accounts {
		if a.Pubkey != "" && a.Pubkey != programID && !decoder.IsWellKnownAccount(a.Pubkey) {
			return a.Pubkey
		}
	}
	return ""
}

func programSet(programs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(programs))
	for _, p := range programs {
		set[p] = struct{}{}
	}
	return set
}

func isConfirmed(commitment string) bool {
	return commitment == "confirmed" || commitment == "finalized"
}
