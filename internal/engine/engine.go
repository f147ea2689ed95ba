// Package engine coordinates the risk-gated order execution pipeline:
// signal intake, risk evaluation, idempotent dispatch to a broker adapter,
// and audit-trail emission.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"tradegate/internal/audit"
	"tradegate/internal/domain"
)

// SignalSource produces trade proposals. It is consumed once per
// orchestrator pass and may return an empty slice. Implementations must not
// block indefinitely.
type SignalSource interface {
	GetSignals(ctx context.Context) ([]domain.TradeSignal, error)
}

// SliceSource is a SignalSource over a fixed slice, used for replays, demos,
// and tests.
type SliceSource []domain.TradeSignal

// GetSignals returns the slice.
func (s SliceSource) GetSignals(_ context.Context) ([]domain.TradeSignal, error) {
	return s, nil
}

// ResultKind classifies the outcome of one signal.
type ResultKind string

const (
	ResultApprovedFilled  ResultKind = "approved_filled"
	ResultApprovedPending ResultKind = "approved_pending"
	ResultRejectedRisk    ResultKind = "rejected_risk"
	ResultRejectedBroker  ResultKind = "rejected_broker"
	ResultErrorTransient  ResultKind = "error_transient"
)

// ExecutionResult is the per-signal outcome of an orchestrator pass. Nothing
// is dropped silently: every input signal yields exactly one result.
type ExecutionResult struct {
	Signal   domain.TradeSignal
	Decision domain.Decision
	Order    *domain.Order // nil for risk rejections
	Err      error
	Kind     ResultKind
}

// Orchestrator pulls signals, runs them through the risk engine, hands
// approved ones to the executor, and emits audit records asynchronously.
// Multiple orchestrator runs may execute concurrently; per-account and
// per-order critical sections live in the risk engine and executor.
type Orchestrator struct {
	source SignalSource
	risk   *RiskEngine
	exec   *TradeExecutor
	sink   audit.Sink
	log    *slog.Logger

	auditWG sync.WaitGroup
}

// NewOrchestrator wires an orchestrator to its collaborators.
func NewOrchestrator(source SignalSource, risk *RiskEngine, exec *TradeExecutor, sink audit.Sink, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		source: source,
		risk:   risk,
		exec:   exec,
		sink:   sink,
		log:    log.With("component", "orchestrator"),
	}
}

// RunOnce processes one batch of signals and returns one result per input
// signal, preserving input order. A single signal's failure never aborts the
// rest of the batch. Audit emission is fire-and-forget with respect to the
// returned results.
func (o *Orchestrator) RunOnce(ctx context.Context) []ExecutionResult {
	signals, err := o.source.GetSignals(ctx)
	if err != nil {
		o.log.Error("fetching signals", "error", err)
		return nil
	}

	results := make([]ExecutionResult, 0, len(signals))
	for _, sig := range signals {
		res := o.process(ctx, sig)
		results = append(results, res)

		if res.Order != nil {
			o.recordAsync(res.Order.Clone())
		}
	}
	return results
}

// process runs a single signal through the gate and classifies the outcome.
func (o *Orchestrator) process(ctx context.Context, sig domain.TradeSignal) ExecutionResult {
	decision := o.risk.Evaluate(sig)
	if !decision.Approved {
		o.log.Info("signal rejected",
			"account", sig.AccountID, "symbol", sig.Symbol,
			"reason", string(decision.Reason), "detail", decision.Detail)
		return ExecutionResult{Signal: sig, Decision: decision, Kind: ResultRejectedRisk}
	}

	order, err := o.exec.Execute(ctx, sig, decision)
	res := ExecutionResult{Signal: sig, Decision: decision, Order: order, Err: err}
	switch {
	case err == nil:
		if order.Status == domain.OrderStatusFilled || order.Status == domain.OrderStatusPartiallyFilled {
			res.Kind = ResultApprovedFilled
		} else {
			res.Kind = ResultApprovedPending
		}
	case order != nil && order.Status == domain.OrderStatusRejected:
		res.Kind = ResultRejectedBroker
	case errors.Is(err, ErrRetriesExhausted):
		res.Kind = ResultErrorTransient
	default:
		res.Kind = ResultErrorTransient
	}
	return res
}

// Settle records a closed trade: the realized P&L is applied to the
// account's daily loss counter and a settlement record is appended to the
// audit trail. Settlement data arrives from an external feed, outside the
// dispatch path.
func (o *Orchestrator) Settle(ctx context.Context, rec domain.SettlementRecord) {
	o.risk.Settle(rec.AccountID, rec.RealizedPnL)
	if err := o.sink.RecordSettlement(ctx, rec); err != nil {
		o.log.Warn("settlement audit failed", "clientOrderID", rec.ClientOrderID, "error", err)
	}
}

// recordAsync appends a trade record without blocking the caller. Audit
// failures are logged and never surfaced.
func (o *Orchestrator) recordAsync(order *domain.Order) {
	o.auditWG.Add(1)
	go func() {
		defer o.auditWG.Done()
		if err := o.sink.RecordTrade(context.Background(), order); err != nil {
			o.log.Warn("trade audit failed", "clientOrderID", order.ClientOrderID, "error", err)
		}
	}()
}

// Drain blocks until in-flight audit emissions finish. Called on shutdown;
// tests use it to observe the audit trail deterministically.
func (o *Orchestrator) Drain() {
	o.auditWG.Wait()
}
