package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "tradegate",
	Short: "Risk-gated order execution pipeline",
	Long: `tradegate takes trade signals through a risk gate and dispatches the
approved ones to a broker, exactly once per signal.

Signals are evaluated against per-account limits (daily loss, position size,
open trades), dispatched idempotently with bounded retries, tracked through
an order state machine, and mirrored to an audit ledger.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Local overrides for credentials and mode; missing file is fine.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/tradegate.yaml", "path to config file")
}
