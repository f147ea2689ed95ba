package audit

import (
	"context"
	"log/slog"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ Sink = (*NoopSink)(nil)

// NoopSink is the sink used when no ledger endpoint is configured. Every call
// succeeds and is logged at debug level, so the pipeline runs safely with
// zero ledger infrastructure.
type NoopSink struct {
	log *slog.Logger
}

// NewNoopSink creates a NoopSink.
func NewNoopSink(log *slog.Logger) *NoopSink {
	return &NoopSink{log: log.With("sink", "noop")}
}

// RecordTrade logs and drops the record.
func (s *NoopSink) RecordTrade(_ context.Context, order *domain.Order) error {
	s.log.Debug("ledger unconfigured, dropping trade record",
		"clientOrderID", order.ClientOrderID, "status", string(order.Status))
	return nil
}

// RecordSettlement logs and drops the record.
func (s *NoopSink) RecordSettlement(_ context.Context, rec domain.SettlementRecord) error {
	s.log.Debug("ledger unconfigured, dropping settlement record",
		"clientOrderID", rec.ClientOrderID, "realizedPnL", rec.RealizedPnL)
	return nil
}
