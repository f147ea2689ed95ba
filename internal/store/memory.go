package store

import (
	"context"
	"sync"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ OrderStore = (*MemoryStore)(nil)

// MemoryStore implements OrderStore in memory. Suitable for tests and paper
// runs; idempotency does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*domain.Order)}
}

// SaveOrder inserts or replaces the record for the order's client order ID.
func (s *MemoryStore) SaveOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ClientOrderID] = order.Clone()
	return nil
}

// GetOrder retrieves an order by client order ID.
func (s *MemoryStore) GetOrder(_ context.Context, clientOrderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[clientOrderID]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

// ListOrders returns all orders with the given status.
func (s *MemoryStore) ListOrders(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, *o.Clone())
		}
	}
	return out, nil
}

// ListOpenOrders returns all non-terminal orders.
func (s *MemoryStore) ListOpenOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if !o.Status.Terminal() {
			out = append(out, *o.Clone())
		}
	}
	return out, nil
}

// UpdateOrder persists changes to an existing order.
func (s *MemoryStore) UpdateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ClientOrderID]; !ok {
		return ErrNotFound
	}
	s.orders[order.ClientOrderID] = order.Clone()
	return nil
}
