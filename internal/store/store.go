// Package store defines the OrderStore interface for persisting order
// records and provides in-memory and SQLite implementations.
package store

import (
	"context"
	"errors"

	"tradegate/internal/domain"
)

// ErrNotFound is returned when no order exists for the requested key.
var ErrNotFound = errors.New("store: order not found")

// OrderStore persists and retrieves order records keyed by client order ID.
// The executor relies on it for idempotent dispatch; a durable implementation
// extends that guarantee across process restarts.
type OrderStore interface {
	// SaveOrder inserts a new order, or replaces an existing record with the
	// same client order ID (resubmission after a terminal failure).
	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by client order ID. Returns
	// ErrNotFound when absent.
	GetOrder(ctx context.Context, clientOrderID string) (*domain.Order, error)

	// ListOrders returns all orders with the given status.
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)

	// ListOpenOrders returns all non-terminal orders, the reconciliation
	// pass's work queue.
	ListOpenOrders(ctx context.Context) ([]domain.Order, error)

	// UpdateOrder persists changes to an existing order.
	UpdateOrder(ctx context.Context, order *domain.Order) error
}
