package decoder

import "solana-dex-router/internal/domain"

// Role aliases consulted by the extraction helpers, in priority order.
var (
	mintRoles    = []string{"mint", "token_mint_a", "coin_mint", "input_mint", "token_account_a", "source_token"}
	poolRoles    = []string{"pool", "whirlpool", "swap", "bonding_curve", "pool_state", "amm"}
	creatorRoles = []string{"creator", "user", "payer", "funder", "owner", "authority"}
)

var (
	poolCreationKinds = kindSet("initialize", "initialize2", "initialize_pool", "create_pool", "create")
	swapKinds         = kindSet("swap", "swap_base_in", "swap_base_out", "swap_v2", "two_hop_swap", "buy", "sell")
	liquidityKinds    = kindSet(
		"deposit", "withdraw",
		"increase_liquidity", "decrease_liquidity",
		"open_position", "close_position",
		"deposit_all_token_types", "withdraw_all_token_types",
		"deposit_single_token_type_exact_amount_in", "withdraw_single_token_type_exact_amount_out",
		"migrate",
	)
)

func kindSet(kinds ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		m[k] = struct{}{}
	}
	return m
}

func firstRole(p *domain.ParsedInstruction, roles []string) (string, bool) {
	for _, r := range roles {
		if acct, ok := p.Roles[r]; ok && acct != "" {
			return acct, true
		}
	}
	return "", false
}

// ExtractTokenMint returns the token mint of a decoded instruction.
// Falls back to the first account that is neither a well-known program/sysvar
// nor the instruction's own program.
func ExtractTokenMint(p *domain.ParsedInstruction) (string, bool) {
	if acct, ok := firstRole(p, mintRoles); ok {
		return acct, true
	}
	for _, acct := range p.Accounts {
		if acct == "" || acct == p.ProgramID || IsWellKnownAccount(acct) {
			continue
		}
		return acct, true
	}
	return "", false
}

// ExtractPoolID returns the pool or market account of a decoded instruction.
func ExtractPoolID(p *domain.ParsedInstruction) (string, bool) {
	return firstRole(p, poolRoles)
}

// ExtractCreator returns the authority or user account of a decoded instruction.
func ExtractCreator(p *domain.ParsedInstruction) (string, bool) {
	return firstRole(p, creatorRoles)
}

// IsPoolCreation reports whether kind creates a pool or launches a token.
func IsPoolCreation(kind string) bool {
	_, ok := poolCreationKinds[kind]
	return ok
}

// IsSwap reports whether kind is a trade.
func IsSwap(kind string) bool {
	_, ok := swapKinds[kind]
	return ok
}

// IsLiquidityOperation reports whether kind adds, removes or moves liquidity.
func IsLiquidityOperation(kind string) bool {
	_, ok := liquidityKinds[kind]
	return ok
}

// Class labels used for accounting.
const (
	ClassPoolCreation = "pool_creation"
	ClassSwap         = "swap"
	ClassLiquidity    = "liquidity"
	ClassOther        = "other"
)

// Classify maps an instruction kind to its accounting class.
func Classify(kind string) string {
	switch {
	case IsPoolCreation(kind):
		return ClassPoolCreation
	case IsSwap(kind):
		return ClassSwap
	case IsLiquidityOperation(kind):
		return ClassLiquidity
	default:
		return ClassOther
	}
}
