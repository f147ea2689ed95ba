package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tradegate/internal/domain"
	"tradegate/internal/engine"
	"tradegate/internal/httpapi"
)

var (
	runSignalsPath string
	runInterval    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch of signals through the gate",
	Long: `Run reads a JSON array of trade signals, evaluates each against the
account's risk limits, and dispatches the approved ones to the broker.

With --interval the pipeline keeps running: each tick replays the signal
file through the idempotency layer (already-dispatched signals are no-ops)
and reconciles open orders, until interrupted.

Example:
  tradegate run -c config/tradegate.yaml --signals signals.json`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runSignalsPath, "signals", "s", "", "path to JSON signal batch (required)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "re-run and reconcile on this interval (0 = single pass)")
	_ = runCmd.MarkFlagRequired("signals")
}

func runRun(_ *cobra.Command, _ []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	signals, err := loadSignals(runSignalsPath)
	if err != nil {
		return err
	}

	o := engine.NewOrchestrator(engine.SliceSource(signals), p.risk, p.exec, p.sink, p.log)
	defer o.Drain()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := p.cfg.API.ListenAddr; addr != "" {
		startStatusAPI(ctx, addr, p)
	}

	pass(ctx, o, p)
	if runInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("shutting down")
			return nil
		case <-ticker.C:
			if _, err := p.exec.Reconcile(ctx); err != nil {
				p.log.Error("reconciliation failed", "error", err)
			}
			pass(ctx, o, p)
		}
	}
}

// startStatusAPI serves the status HTTP API until the context is cancelled.
func startStatusAPI(ctx context.Context, addr string, p *pipeline) {
	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewStatusServer(p.orders, p.risk, p.exec, p.log).Handler(),
	}
	go func() {
		p.log.Info("status api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("status api failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// pass runs one orchestrator batch and prints the per-signal outcomes.
func pass(ctx context.Context, o *engine.Orchestrator, p *pipeline) {
	for _, res := range o.RunOnce(ctx) {
		switch {
		case res.Order != nil:
			fmt.Printf("%-18s %-6s %-4s %8.2f  %s\n",
				res.Kind, res.Signal.Symbol, res.Signal.Side, res.Signal.Qty, res.Order.ClientOrderID)
		default:
			fmt.Printf("%-18s %-6s %-4s %8.2f  %s: %s\n",
				res.Kind, res.Signal.Symbol, res.Signal.Side, res.Signal.Qty,
				res.Decision.Reason, res.Decision.Detail)
		}
	}
}

// loadSignals parses a JSON array of trade signals, stamping CreatedAt on
// entries that omit it.
func loadSignals(path string) ([]domain.TradeSignal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signals %q: %w", path, err)
	}
	var signals []domain.TradeSignal
	if err := json.Unmarshal(data, &signals); err != nil {
		return nil, fmt.Errorf("parsing signals %q: %w", path, err)
	}
	now := time.Now()
	for i := range signals {
		if signals[i].CreatedAt.IsZero() {
			signals[i].CreatedAt = now
		}
	}
	return signals, nil
}
