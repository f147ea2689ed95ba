// Package broker defines the Adapter interface abstracting a brokerage and
// provides a paper simulator plus a live Alpaca implementation.
//
// Adapters are stateless with respect to risk and never retry internally;
// retry policy lives in the executor so idempotency-key reuse stays centrally
// controlled.
package broker

import (
	"context"

	"tradegate/internal/domain"
)

// Adapter abstracts order placement at a brokerage. Implementations must be
// safe for concurrent use across accounts.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "alpaca", "paper").
	Name() string

	// PlaceOrder submits the order for execution and returns the broker's
	// view of it (broker order ID, status, fills). The input order is not
	// mutated.
	PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its broker-side ID.
	// A nil error means the order is cancelled.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// GetOrderStatus returns the broker's current view of an order, used by
	// the reconciliation pass to resolve unknown outcomes.
	GetOrderStatus(ctx context.Context, brokerOrderID string) (*domain.Order, error)
}

// PaperName identifies the simulated adapter. The executor's live-trading
// gate checks against it at construction time.
const PaperName = "paper"
