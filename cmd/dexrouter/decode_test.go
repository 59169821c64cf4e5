package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/jsoncodec"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	// keep the working directory's .env out of the test
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := root.Execute()
	return out.String(), err
}

func TestDecodeCommand(t *testing.T) {
	accounts := make([]string, 12)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("acct%02d", i)
	}
	data := base58.Encode([]byte{decoder.AnchorOpcode("buy"), 1, 2, 3})

	out, err := runCLI(t, "decode",
		"--program", decoder.PumpFun,
		"--data", data,
		"--accounts", strings.Join(accounts, ","),
	)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, jsoncodec.Unmarshal([]byte(out), &got))
	assert.Equal(t, "buy", got["instruction_kind"])
	assert.Equal(t, decoder.ClassSwap, got["class"])
	assert.Equal(t, "pumpfun", got["program"])
	assert.Equal(t, "acct02", got["token_mint"])
	assert.Equal(t, "acct03", got["pool_id"])
}

func TestDecodeCommand_UnknownProgram(t *testing.T) {
	out, err := runCLI(t, "decode", "--program", "NotAProgram111", "--data", base58.Encode([]byte{9}))
	require.NoError(t, err)
	assert.Contains(t, out, `"instruction_kind": "unknown"`)
}

func TestDecodeCommand_Errors(t *testing.T) {
	_, err := runCLI(t, "decode")
	assert.Error(t, err)

	_, err = runCLI(t, "decode", "--program", decoder.PumpFun, "--data", "0OIl")
	assert.Error(t, err)
}
