package audit

import (
	"context"
	"errors"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ Sink = (MultiSink)(nil)

// MultiSink fans each record out to every child sink. A child failure never
// prevents delivery to the others.
type MultiSink []Sink

// NewMultiSink returns a sink over the given children. Zero children
// collapses to an always-nil sink; one child is returned as-is by callers
// that care, but wrapping it is harmless.
func NewMultiSink(sinks ...Sink) MultiSink {
	return MultiSink(sinks)
}

// RecordTrade delivers the order to every child and joins their errors.
func (m MultiSink) RecordTrade(ctx context.Context, order *domain.Order) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordTrade(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSettlement delivers the record to every child and joins their errors.
func (m MultiSink) RecordSettlement(ctx context.Context, rec domain.SettlementRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordSettlement(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
