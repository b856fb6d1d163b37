package main

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/rpc"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

var rootCmd = &cobra.Command{
	Use:   "walletcore",
	Short: "Multi-chain wallet core: swap quotes, transaction lifecycle and confirmations",
	Long: `walletcore runs the transaction and swap engine of a multi-chain wallet.

Examples:
  walletcore serve --config ./walletcore.toml
  walletcore serve                      # config from WALLETCORE_ env vars
  walletcore route polkadot-NATIVE-DOT ethereum-NATIVE-ETH --chain-config ./registry.toml`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "\nError: %v\n\n", err)
		os.Exit(1)
	}
}
