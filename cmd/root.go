package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "typed-signer",
	Short: "EIP-712 typed-data signing engine",
	Long: `Builds, signs and assembles EIP-712 typed-data messages for on-chain
verification: single and batch oracle price updates, Wager permits and
gasless meta-transactions.

Configuration is read from the environment (and a .env file if present).
Signing commands need SIGNER_PRIVATE_KEY or SIGNER_MODE=remote; commands
that read or write the chain need RPC_URL.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
