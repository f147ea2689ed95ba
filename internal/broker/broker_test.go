package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradegate/internal/domain"
)

func marketOrder(clientID, symbol string, side domain.OrderSide, qty float64) *domain.Order {
	return &domain.Order{
		ClientOrderID: clientID,
		AccountID:     "acct-1",
		Symbol:        symbol,
		Side:          side,
		Type:          domain.OrderTypeMarket,
		Qty:           qty,
		Status:        domain.OrderStatusNew,
		CreatedAt:     time.Now(),
		Metadata:      map[string]string{},
	}
}

func limitOrder(clientID, symbol string, side domain.OrderSide, qty, limit float64) *domain.Order {
	o := marketOrder(clientID, symbol, side, qty)
	o.Type = domain.OrderTypeLimit
	o.LimitPrice = limit
	return o
}

func TestPaperAdapterName(t *testing.T) {
	p := NewPaperAdapter()
	if got := p.Name(); got != PaperName {
		t.Errorf("PaperAdapter.Name() = %q, want %q", got, PaperName)
	}
}

func TestAlpacaAdapterName(t *testing.T) {
	a := NewAlpacaAdapter("key", "secret", "https://paper-api.alpaca.markets", 0)
	if got := a.Name(); got != "alpaca" {
		t.Errorf("AlpacaAdapter.Name() = %q, want %q", got, "alpaca")
	}
}

func TestPaperMarketOrderFillsInstantly(t *testing.T) {
	p := NewPaperAdapter()
	p.SetPrice("AAPL", 190.0)

	placed, err := p.PlaceOrder(context.Background(), marketOrder("c1", "AAPL", domain.OrderSideBuy, 10))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.Status != domain.OrderStatusFilled {
		t.Errorf("Status = %q, want filled", placed.Status)
	}
	if placed.FilledQty != 10 {
		t.Errorf("FilledQty = %v, want 10", placed.FilledQty)
	}
	if placed.FilledAvgPrice != 190.0 {
		t.Errorf("FilledAvgPrice = %v, want 190.0", placed.FilledAvgPrice)
	}
	if placed.BrokerOrderID == "" {
		t.Error("BrokerOrderID not assigned")
	}
}

func TestPaperLimitOrderCrossAndRest(t *testing.T) {
	p := NewPaperAdapter()
	ctx := context.Background()
	p.SetPrice("MSFT", 400.0)

	// Buy limit above the mark: executable immediately, fills at the limit.
	filled, err := p.PlaceOrder(ctx, limitOrder("c1", "MSFT", domain.OrderSideBuy, 5, 405.0))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if filled.Status != domain.OrderStatusFilled {
		t.Errorf("crossed limit order Status = %q, want filled", filled.Status)
	}
	if filled.FilledAvgPrice != 405.0 {
		t.Errorf("FilledAvgPrice = %v, want limit price 405.0", filled.FilledAvgPrice)
	}

	// Buy limit below the mark: rests.
	resting, err := p.PlaceOrder(ctx, limitOrder("c2", "MSFT", domain.OrderSideBuy, 5, 395.0))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if resting.Status != domain.OrderStatusNew {
		t.Fatalf("resting limit order Status = %q, want new", resting.Status)
	}

	// Market drops through the limit: the resting order fills.
	p.Tick("MSFT", 394.0)
	got, err := p.GetOrderStatus(ctx, resting.BrokerOrderID)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if got.Status != domain.OrderStatusFilled {
		t.Errorf("after tick Status = %q, want filled", got.Status)
	}
}

func TestPaperSellLimitCross(t *testing.T) {
	p := NewPaperAdapter()
	p.SetPrice("TSLA", 250.0)

	// Sell limit below the mark is executable.
	placed, err := p.PlaceOrder(context.Background(), limitOrder("c1", "TSLA", domain.OrderSideSell, 2, 245.0))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.Status != domain.OrderStatusFilled {
		t.Errorf("Status = %q, want filled", placed.Status)
	}
}

func TestPaperDeduplicatesClientOrderID(t *testing.T) {
	p := NewPaperAdapter()
	ctx := context.Background()

	first, err := p.PlaceOrder(ctx, marketOrder("dup", "AAPL", domain.OrderSideBuy, 1))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	second, err := p.PlaceOrder(ctx, marketOrder("dup", "AAPL", domain.OrderSideBuy, 1))
	if err != nil {
		t.Fatalf("PlaceOrder (retry): %v", err)
	}
	if first.BrokerOrderID != second.BrokerOrderID {
		t.Errorf("retry created a second broker order: %q vs %q", first.BrokerOrderID, second.BrokerOrderID)
	}
	if p.OrderCount() != 1 {
		t.Errorf("OrderCount = %d, want 1", p.OrderCount())
	}
}

func TestPaperCancel(t *testing.T) {
	p := NewPaperAdapter()
	ctx := context.Background()
	p.SetPrice("AAPL", 190.0)

	resting, err := p.PlaceOrder(ctx, limitOrder("c1", "AAPL", domain.OrderSideBuy, 1, 100.0))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if err := p.CancelOrder(ctx, resting.BrokerOrderID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	got, _ := p.GetOrderStatus(ctx, resting.BrokerOrderID)
	if got.Status != domain.OrderStatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}

	// Cancelling a terminal order is a permanent error.
	err = p.CancelOrder(ctx, resting.BrokerOrderID)
	if err == nil {
		t.Fatal("cancelling a cancelled order should fail")
	}
	if IsTransient(err) {
		t.Error("cancel-terminal error should be permanent")
	}

	if err := p.CancelOrder(ctx, "no-such-order"); err == nil {
		t.Error("cancelling an unknown order should fail")
	}
}

func TestPaperDefaultMark(t *testing.T) {
	p := NewPaperAdapter()
	placed, err := p.PlaceOrder(context.Background(), marketOrder("c1", "UNQUOTED", domain.OrderSideBuy, 1))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.FilledAvgPrice != DefaultMarkPrice {
		t.Errorf("FilledAvgPrice = %v, want default mark %v", placed.FilledAvgPrice, DefaultMarkPrice)
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsTransient(NewTransientError("timeout", errors.New("boom"))) {
		t.Error("transient error not classified as transient")
	}
	if IsTransient(NewPermanentError("validation", nil)) {
		t.Error("permanent error classified as transient")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be transient")
	}
	if IsTransient(errors.New("some application error")) {
		t.Error("unclassified non-transport error should not be transient")
	}

	perm := NewPermanentError("insufficient buying power", nil)
	if got := Reason(perm); got != "insufficient buying power" {
		t.Errorf("Reason = %q", got)
	}
}

func TestMapAlpacaStatus(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"filled":           domain.OrderStatusFilled,
		"partially_filled": domain.OrderStatusPartiallyFilled,
		"rejected":         domain.OrderStatusRejected,
		"canceled":         domain.OrderStatusCancelled,
		"expired":          domain.OrderStatusCancelled,
		"accepted":         domain.OrderStatusNew,
		"pending_new":      domain.OrderStatusNew,
	}
	for in, want := range cases {
		if got := mapAlpacaStatus(in); got != want {
			t.Errorf("mapAlpacaStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
