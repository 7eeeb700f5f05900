package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "kalshi-bot",
	Short: "Kalshi signal-driven trading bot",
	Long: `Kalshi signal-driven trading bot supporting three bot variants:
weather (NOAA/Google forecast blend vs strike markets), arbitrage
(complete-set mispricing across an event's outcome markets), and
llm_rules (LLM-assisted rules research feeding the same decision
pipeline as the weather variant).

The bot polls Kalshi's markets API for eligible markets, streams their
quotes over the exchange websocket, and runs each bot variant's signal
through a shared risk-aware decision and execution pipeline.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This module has no main package of its own; Execute is the entry point a
// main.main() wrapper calls, once, for the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Flags can be added here if needed
}
