package decoder

// Known DEX program IDs shipped in the default tables.
const (
	// OrcaTokenSwap is the Orca constant-product token-swap program ID.
	OrcaTokenSwap = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// OrcaWhirlpool is the Orca Whirlpool concentrated-liquidity program ID.
	OrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	// RaydiumCLMM is the Raydium concentrated-liquidity program ID.
	RaydiumCLMM = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	// PumpFun is the pump.fun bonding-curve program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// Well-known system, token and sysvar accounts. These appear in most DEX
// instructions and are never a token mint of interest.
const (
	SystemProgram          = "11111111111111111111111111111111"
	TokenProgram           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgram   = "ComputeBudget111111111111111111111111111111"
	MemoProgram            = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	MetaplexProgram        = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	OpenBookProgram        = "srmqPvymJeFKQ4zGQed1GFppgkRHB9kaELCbyksJtPX"
	RentSysvar             = "SysvarRent111111111111111111111111111111111"
	ClockSysvar            = "SysvarC1ock11111111111111111111111111111111"
	WSOL                   = "So11111111111111111111111111111111111111112"
)

var wellKnownAccounts = map[string]struct{}{
	SystemProgram:          {},
	TokenProgram:           {},
	Token2022Program:       {},
	AssociatedTokenProgram: {},
	ComputeBudgetProgram:   {},
	MemoProgram:            {},
	MetaplexProgram:        {},
	OpenBookProgram:        {},
	RentSysvar:             {},
	ClockSysvar:            {},
	WSOL:                   {},
}

// IsWellKnownAccount reports whether account is a system/token program or sysvar.
func IsWellKnownAccount(account string) bool {
	_, ok := wellKnownAccounts[account]
	return ok
}
