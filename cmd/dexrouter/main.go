// Command dexrouter streams Solana DEX activity, filters and decodes it, and
// fans admitted events out to a message broker.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"solana-dex-router/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dexrouter",
		Short:        "Solana DEX event stream router",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return config.LoadDotEnv(envFile)
		},
	}

	root.PersistentFlags().String("config", "", "config file path (yaml)")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the streaming pipeline",
		RunE:  runRouter,
	}
	config.RegisterFlags(runCmd.Flags())
	runCmd.Flags().Bool("watch", true, "reload filter settings when the config file changes")
	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a single instruction and print the descriptor as JSON",
		RunE:  runDecode,
	}
	decodeCmd.Flags().String("program", "", "program id")
	decodeCmd.Flags().String("data", "", "instruction data (base58)")
	decodeCmd.Flags().StringSlice("accounts", nil, "instruction accounts in order (comma-separated)")
	decodeCmd.Flags().String("decode-tables", "", "YAML decode tables, empty uses the built-in set")
	root.AddCommand(decodeCmd)

	return root
}
