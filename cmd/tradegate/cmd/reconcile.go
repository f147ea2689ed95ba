package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve open orders against the broker",
	Long: `Reconcile polls the broker for every non-terminal order on file and
applies the broker's view: fills are recorded, venue-side cancellations and
rejections release their risk reservations.

Run it after a crash or a batch that exhausted its retries, so orders with an
unknown outcome reach a terminal state.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	resolved, err := p.exec.Reconcile(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("resolved %d order(s)\n", resolved)
	return nil
}
