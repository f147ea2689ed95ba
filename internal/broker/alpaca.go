package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
	"tradegate/internal/util"
)

// Compile-time interface check.
var _ Adapter = (*AlpacaAdapter)(nil)

// AlpacaAdapter implements the Adapter interface against the Alpaca trading
// API. Calls are rate limited to stay under the account's per-minute budget.
type AlpacaAdapter struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
}

// NewAlpacaAdapter creates an AlpacaAdapter with the given credentials and
// API endpoint. ratePerMin bounds outgoing calls; zero selects the Alpaca
// default of 200/min.
func NewAlpacaAdapter(apiKey, apiSecret, baseURL string, ratePerMin int) *AlpacaAdapter {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	if ratePerMin <= 0 {
		ratePerMin = 200
	}
	return &AlpacaAdapter{
		client:  alpaca.NewClient(opts),
		limiter: util.NewRateLimiter(ratePerMin),
	}
}

// Name returns "alpaca".
func (a *AlpacaAdapter) Name() string { return "alpaca" }

// PlaceOrder submits the order via POST /v2/orders. The client order ID is
// passed through, so Alpaca deduplicates retries of the same signal.
func (a *AlpacaAdapter) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, NewTransientError("rate limiter interrupted", err)
	}

	qty := decimal.NewFromFloat(order.Qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:        order.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(order.Side),
		Type:          alpaca.OrderType(order.Type),
		TimeInForce:   alpaca.Day,
		ClientOrderID: order.ClientOrderID,
	}
	if order.Type == domain.OrderTypeLimit {
		limit := decimal.NewFromFloat(order.LimitPrice)
		req.LimitPrice = &limit
	}

	placed, err := a.client.PlaceOrder(req)
	if err != nil {
		return nil, classify("place order", err)
	}

	out := order.Clone()
	applyAlpacaOrder(out, placed)
	return out, nil
}

// CancelOrder cancels an open order via DELETE /v2/orders/{id}.
func (a *AlpacaAdapter) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return NewTransientError("rate limiter interrupted", err)
	}
	if err := a.client.CancelOrder(brokerOrderID); err != nil {
		return classify("cancel order", err)
	}
	return nil
}

// GetOrderStatus fetches the broker's view of an order via GET /v2/orders/{id}.
func (a *AlpacaAdapter) GetOrderStatus(ctx context.Context, brokerOrderID string) (*domain.Order, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, NewTransientError("rate limiter interrupted", err)
	}
	got, err := a.client.GetOrder(brokerOrderID)
	if err != nil {
		return nil, classify("get order", err)
	}

	out := &domain.Order{
		ClientOrderID: got.ClientOrderID,
		Symbol:        got.Symbol,
		Side:          domain.OrderSide(got.Side),
		Type:          domain.OrderType(got.Type),
		CreatedAt:     got.CreatedAt,
		Metadata:      make(map[string]string),
	}
	if got.Qty != nil {
		out.Qty = got.Qty.InexactFloat64()
	}
	applyAlpacaOrder(out, got)
	return out, nil
}

// applyAlpacaOrder copies the broker-owned fields of an Alpaca order onto a
// domain order.
func applyAlpacaOrder(out *domain.Order, in *alpaca.Order) {
	out.BrokerOrderID = in.ID
	out.Status = mapAlpacaStatus(in.Status)
	out.FilledQty = in.FilledQty.InexactFloat64()
	if in.FilledAvgPrice != nil {
		out.FilledAvgPrice = in.FilledAvgPrice.InexactFloat64()
	}
	out.UpdatedAt = in.UpdatedAt
}

// mapAlpacaStatus translates Alpaca's order status vocabulary into ours.
// Pre-acknowledgement states ("accepted", "pending_new", ...) map to "new".
func mapAlpacaStatus(status string) domain.OrderStatus {
	switch status {
	case "filled":
		return domain.OrderStatusFilled
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "rejected":
		return domain.OrderStatusRejected
	case "canceled", "expired", "done_for_day":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusNew
	}
}

// classify maps an Alpaca client error into the transient/permanent taxonomy:
// 5xx and 429 are retryable, other HTTP statuses are broker-side rejections,
// anything else (DNS failure, reset, timeout) is transport and retryable.
func classify(op string, err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 || apiErr.StatusCode == 429 {
			return NewTransientError(fmt.Sprintf("%s: alpaca %d", op, apiErr.StatusCode), err)
		}
		return NewPermanentError(fmt.Sprintf("%s: %s", op, apiErr.Message), err)
	}
	return NewTransientError(op, err)
}
