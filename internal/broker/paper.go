package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ Adapter = (*PaperAdapter)(nil)

// DefaultMarkPrice is used for symbols with no simulated quote.
const DefaultMarkPrice = 100.0

// PaperAdapter simulates a brokerage entirely in memory, with no network
// calls. Market orders fill instantly at the mark price; limit orders fill
// only when the mark crosses the limit, otherwise they rest until the next
// Tick. Like a real venue, it deduplicates by client order ID.
type PaperAdapter struct {
	mu       sync.Mutex
	prices   map[string]float64
	orders   map[string]*domain.Order // broker order ID -> order
	byClient map[string]string        // client order ID -> broker order ID
	seq      int64
}

// NewPaperAdapter creates an empty paper adapter.
func NewPaperAdapter() *PaperAdapter {
	return &PaperAdapter{
		prices:   make(map[string]float64),
		orders:   make(map[string]*domain.Order),
		byClient: make(map[string]string),
	}
}

// Name returns "paper".
func (p *PaperAdapter) Name() string { return PaperName }

// SetPrice sets the simulated mark price for a symbol.
func (p *PaperAdapter) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// markPrice must be called with mu held.
func (p *PaperAdapter) markPrice(symbol string) float64 {
	if px, ok := p.prices[symbol]; ok {
		return px
	}
	return DefaultMarkPrice
}

// crossed reports whether a limit order is executable at the mark price.
func crossed(side domain.OrderSide, mark, limit float64) bool {
	if side == domain.OrderSideBuy {
		return mark <= limit
	}
	return mark >= limit
}

// PlaceOrder records the order and simulates execution. Re-submitting a
// client order ID already known to the venue returns the existing order.
func (p *PaperAdapter) PlaceOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if brokerID, ok := p.byClient[order.ClientOrderID]; ok {
		return p.orders[brokerID].Clone(), nil
	}

	p.seq++
	placed := order.Clone()
	placed.BrokerOrderID = fmt.Sprintf("paper-%d", p.seq)
	placed.UpdatedAt = time.Now()

	mark := p.markPrice(placed.Symbol)
	switch placed.Type {
	case domain.OrderTypeMarket:
		p.fill(placed, mark)
	case domain.OrderTypeLimit:
		if crossed(placed.Side, mark, placed.LimitPrice) {
			p.fill(placed, placed.LimitPrice)
		}
		// Not crossed: rests in state "new".
	default:
		return nil, NewPermanentError(fmt.Sprintf("unsupported order type %q", placed.Type), nil)
	}

	p.orders[placed.BrokerOrderID] = placed
	p.byClient[placed.ClientOrderID] = placed.BrokerOrderID
	return placed.Clone(), nil
}

// fill must be called with mu held.
func (p *PaperAdapter) fill(o *domain.Order, price float64) {
	o.Status = domain.OrderStatusFilled
	o.FilledQty = o.Qty
	o.FilledAvgPrice = price
	o.UpdatedAt = time.Now()
}

// CancelOrder cancels a resting order. Cancelling a terminal order is a
// permanent error.
func (p *PaperAdapter) CancelOrder(_ context.Context, brokerOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[brokerOrderID]
	if !ok {
		return NewPermanentError(fmt.Sprintf("unknown order %q", brokerOrderID), nil)
	}
	if o.Status.Terminal() {
		return NewPermanentError(fmt.Sprintf("order %q already %s", brokerOrderID, o.Status), nil)
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// GetOrderStatus returns the venue's view of the order.
func (p *PaperAdapter) GetOrderStatus(_ context.Context, brokerOrderID string) (*domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[brokerOrderID]
	if !ok {
		return nil, NewPermanentError(fmt.Sprintf("unknown order %q", brokerOrderID), nil)
	}
	return o.Clone(), nil
}

// Tick advances the simulated market: it sets the mark price for symbol and
// fills any resting limit orders the new price crosses.
func (p *PaperAdapter) Tick(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[symbol] = price
	for _, o := range p.orders {
		if o.Symbol != symbol || o.Status.Terminal() {
			continue
		}
		if o.Type == domain.OrderTypeLimit && crossed(o.Side, price, o.LimitPrice) {
			p.fill(o, o.LimitPrice)
		}
	}
}

// OrderCount returns the number of broker-side orders, useful for asserting
// that idempotent retries created exactly one order.
func (p *PaperAdapter) OrderCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}
