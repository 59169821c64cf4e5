package main

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/domain"
	"solana-dex-router/internal/jsoncodec"
)

// decodeOutput is the JSON printed by the decode command.
type decodeOutput struct {
	Program string `json:"program"`
	Class   string `json:"class"`
	domain.ParsedInstruction
	TokenMint string `json:"token_mint,omitempty"`
	PoolID    string `json:"pool_id,omitempty"`
	Creator   string `json:"creator,omitempty"`
}

func runDecode(cmd *cobra.Command, _ []string) error {
	programID, _ := cmd.Flags().GetString("program")
	dataB58, _ := cmd.Flags().GetString("data")
	accounts, _ := cmd.Flags().GetStringSlice("accounts")
	tablesPath, _ := cmd.Flags().GetString("decode-tables")

	if programID == "" {
		return fmt.Errorf("program is required")
	}

	var data []byte
	if dataB58 != "" {
		var err error
		if data, err = base58.Decode(dataB58); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}

	dec, err := newDecoder(tablesPath)
	if err != nil {
		return err
	}

	ixAccounts := make([]domain.InstructionAccount, len(accounts))
	for i, a := range accounts {
		ixAccounts[i] = domain.InstructionAccount{Pubkey: a}
	}

	parsed := dec.Decode(programID, ixAccounts, data)
	out := decodeOutput{
		Program:           dec.ProgramName(programID),
		Class:             decoder.Classify(parsed.Kind),
		ParsedInstruction: parsed,
	}
	out.TokenMint, _ = decoder.ExtractTokenMint(&parsed)
	out.PoolID, _ = decoder.ExtractPoolID(&parsed)
	out.Creator, _ = decoder.ExtractCreator(&parsed)

	b, err := jsoncodec.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func newDecoder(tablesPath string) (*decoder.Decoder, error) {
	if tablesPath == "" {
		return decoder.NewDefault()
	}
	tables, err := decoder.LoadTablesFile(tablesPath)
	if err != nil {
		return nil, err
	}
	return decoder.New(tables), nil
}
