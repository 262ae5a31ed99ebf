// Package cli implements the scrape command-line interface using Cobra.
// Every mutating command is signed by the local wallet and applied to the
// node's ledger.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var walletFlag string

var rootCmd = &cobra.Command{
	Use:   "scrape",
	Short: "scrape: a marketplace for web scraping work",
	Long: `scrape runs a node of the scraping marketplace.
Clients escrow rewards for scraping tasks, providers claim and complete
them, and the escrow vault pays providers on completion.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&walletFlag, "wallet", "", "Wallet key file (base58 or keygen JSON)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
