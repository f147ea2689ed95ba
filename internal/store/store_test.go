package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tradegate/internal/domain"
)

// stores returns one of each OrderStore implementation so both run the same
// conformance checks.
func stores(t *testing.T) map[string]OrderStore {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]OrderStore{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func sampleOrder(clientID string, status domain.OrderStatus) *domain.Order {
	now := time.Date(2025, 4, 1, 15, 30, 0, 0, time.UTC)
	return &domain.Order{
		ClientOrderID: clientID,
		AccountID:     "acct-1",
		Symbol:        "AAPL",
		Side:          domain.OrderSideBuy,
		Type:          domain.OrderTypeLimit,
		Qty:           10,
		LimitPrice:    182.5,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      map[string]string{"venue": "paper"},
	}
}

func TestOrderStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.GetOrder(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetOrder(missing) = %v, want ErrNotFound", err)
			}

			in := sampleOrder("ord-1", domain.OrderStatusNew)
			if err := s.SaveOrder(ctx, in); err != nil {
				t.Fatalf("SaveOrder: %v", err)
			}

			got, err := s.GetOrder(ctx, "ord-1")
			if err != nil {
				t.Fatalf("GetOrder: %v", err)
			}
			if got.Symbol != "AAPL" || got.Qty != 10 || got.LimitPrice != 182.5 {
				t.Errorf("round-trip mismatch: %+v", got)
			}
			if got.Status != domain.OrderStatusNew {
				t.Errorf("Status = %q, want new", got.Status)
			}
			if got.Metadata["venue"] != "paper" {
				t.Errorf("Metadata = %v, want venue=paper", got.Metadata)
			}
			if !got.CreatedAt.Equal(in.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, in.CreatedAt)
			}

			// Mutating the returned order must not affect the stored copy.
			got.Status = domain.OrderStatusFilled
			again, _ := s.GetOrder(ctx, "ord-1")
			if again.Status != domain.OrderStatusNew {
				t.Error("store returned aliased order")
			}
		})
	}
}

func TestOrderStoreUpdate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.UpdateOrder(ctx, sampleOrder("nope", domain.OrderStatusNew)); !errors.Is(err, ErrNotFound) {
				t.Errorf("UpdateOrder(missing) = %v, want ErrNotFound", err)
			}

			o := sampleOrder("ord-2", domain.OrderStatusNew)
			if err := s.SaveOrder(ctx, o); err != nil {
				t.Fatalf("SaveOrder: %v", err)
			}

			o.BrokerOrderID = "brk-77"
			o.Status = domain.OrderStatusFilled
			o.FilledQty = 10
			o.FilledAvgPrice = 182.4
			o.UpdatedAt = o.UpdatedAt.Add(time.Second)
			if err := s.UpdateOrder(ctx, o); err != nil {
				t.Fatalf("UpdateOrder: %v", err)
			}

			got, err := s.GetOrder(ctx, "ord-2")
			if err != nil {
				t.Fatalf("GetOrder: %v", err)
			}
			if got.Status != domain.OrderStatusFilled || got.BrokerOrderID != "brk-77" {
				t.Errorf("update not persisted: %+v", got)
			}
			if got.FilledQty != 10 || got.FilledAvgPrice != 182.4 {
				t.Errorf("fills not persisted: %+v", got)
			}
		})
	}
}

func TestOrderStoreListing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i, st := range []domain.OrderStatus{
				domain.OrderStatusNew,
				domain.OrderStatusPartiallyFilled,
				domain.OrderStatusFilled,
				domain.OrderStatusRejected,
			} {
				o := sampleOrder(string(rune('a'+i)), st)
				o.CreatedAt = o.CreatedAt.Add(time.Duration(i) * time.Minute)
				if err := s.SaveOrder(ctx, o); err != nil {
					t.Fatalf("SaveOrder: %v", err)
				}
			}

			filled, err := s.ListOrders(ctx, domain.OrderStatusFilled)
			if err != nil {
				t.Fatalf("ListOrders: %v", err)
			}
			if len(filled) != 1 || filled[0].Status != domain.OrderStatusFilled {
				t.Errorf("ListOrders(filled) = %+v, want one filled order", filled)
			}

			open, err := s.ListOpenOrders(ctx)
			if err != nil {
				t.Fatalf("ListOpenOrders: %v", err)
			}
			if len(open) != 2 {
				t.Fatalf("ListOpenOrders returned %d orders, want 2", len(open))
			}
			for _, o := range open {
				if o.Status.Terminal() {
					t.Errorf("ListOpenOrders returned terminal order %+v", o)
				}
			}
		})
	}
}
