package domain

// InstructionAccount is one entry of an instruction's ordered account list.
// Position is significant and program-specific.
type InstructionAccount struct {
	Pubkey     string `json:"pubkey"`
	IsWritable bool   `json:"is_writable"`
	IsSigner   bool   `json:"is_signer"`
}

// Instruction kinds shared by every program table.
const (
	KindUnknown = "unknown"
	KindInvalid = "invalid"
)

// ParsedInstruction is the decoder output for a single instruction.
type ParsedInstruction struct {
	ProgramID string            `json:"program_id"`
	Kind      string            `json:"instruction_kind"`
	Accounts  []string          `json:"accounts"`
	Data      []byte            `json:"data,omitempty"`
	Roles     map[string]string `json:"roles"` // role name -> account; absent roles are missing keys
}

// Role returns the account bound to role and whether it is present.
func (p *ParsedInstruction) Role(role string) (string, bool) {
	account, ok := p.Roles[role]
	return account, ok
}

// AccountKeys returns the pubkeys of accounts in order.
func AccountKeys(accounts []InstructionAccount) []string {
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = a.Pubkey
	}
	return keys
}
