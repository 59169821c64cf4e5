// Package decoder turns raw DEX program instructions into structured
// descriptors using versioned, table-driven opcode and account-role layouts.
package decoder

import (
	"fmt"

	"solana-dex-router/internal/domain"
)

// Decoder decodes instructions for the programs in its tables.
// It is immutable after construction and safe for concurrent use.
type Decoder struct {
	tables *Tables
}

// New creates a decoder over tables. A nil tables value yields a decoder that
// knows no programs.
func New(tables *Tables) *Decoder {
	if tables == nil {
		tables = &Tables{Programs: map[string]*ProgramTable{}}
	}
	return &Decoder{tables: tables}
}

// NewDefault creates a decoder over the embedded default tables.
func NewDefault() (*Decoder, error) {
	tables, err := DefaultTables()
	if err != nil {
		return nil, fmt.Errorf("load default decode tables: %w", err)
	}
	return New(tables), nil
}

// Version returns the decode table version.
func (d *Decoder) Version() int {
	return d.tables.Version
}

// Knows reports whether programID has a decode table.
func (d *Decoder) Knows(programID string) bool {
	_, ok := d.tables.Programs[programID]
	return ok
}

// ProgramName returns the table name for programID, or "" if unknown.
func (d *Decoder) ProgramName(programID string) string {
	if pt, ok := d.tables.Programs[programID]; ok {
		return pt.Name
	}
	return ""
}

// Decode decodes a single instruction. It never fails:
// unknown programs and unmapped opcodes yield KindUnknown, empty data yields
// KindInvalid, and in both cases roles are empty and accounts are copied through.
// Roles are filled only when the account list meets the layout minimum.
func (d *Decoder) Decode(programID string, accounts []domain.InstructionAccount, data []byte) domain.ParsedInstruction {
	parsed := domain.ParsedInstruction{
		ProgramID: programID,
		Kind:      domain.KindUnknown,
		Accounts:  domain.AccountKeys(accounts),
		Data:      data,
		Roles:     map[string]string{},
	}

	pt, ok := d.tables.Programs[programID]
	if !ok {
		return parsed
	}
	if len(data) == 0 {
		parsed.Kind = domain.KindInvalid
		return parsed
	}

	kind, ok := pt.Opcodes[data[0]]
	if !ok {
		return parsed
	}
	parsed.Kind = kind

	layout, ok := pt.Layouts[kind]
	if !ok || len(accounts) < layout.MinAccounts {
		return parsed
	}
	for idx, role := range layout.Roles {
		// tables built in code skip LoadTables validation
		if idx < 0 || idx >= len(accounts) {
			continue
		}
		parsed.Roles[role] = accounts[idx].Pubkey
	}
	return parsed
}
