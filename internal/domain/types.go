// Package domain defines the shared value types for the trading pipeline:
// signals, orders, risk decisions, and audit records.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// OrderSide is the direction of a trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether the status has no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// transitions is the order state machine. Terminal states have no entry.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew: {
		OrderStatusPartiallyFilled,
		OrderStatusFilled,
		OrderStatusRejected,
		OrderStatusCancelled,
	},
	OrderStatusPartiallyFilled: {
		OrderStatusFilled,
		OrderStatusCancelled,
	},
}

// CanTransition reports whether s -> next is a legal state-machine edge.
// A same-state "transition" is not an edge; callers treat it as a plain
// field update.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// RejectReason identifies why a signal was refused before execution.
type RejectReason string

const (
	RejectDailyLoss    RejectReason = "DAILY_LOSS_EXCEEDED"
	RejectPositionSize RejectReason = "POSITION_SIZE_EXCEEDED"
	RejectOpenTrades   RejectReason = "OPEN_TRADES_EXCEEDED"
	RejectInvalid      RejectReason = "INVALID_SIGNAL"
)

// ---------------------------------------------------------------------------
// TradeSignal
// ---------------------------------------------------------------------------

// TradeSignal is an immutable trade proposal produced by an external signal
// source. The core never mutates a signal.
type TradeSignal struct {
	AccountID      string    `json:"account_id"`
	Symbol         string    `json:"symbol"`
	Side           OrderSide `json:"side"`
	Qty            float64   `json:"qty"`
	Type           OrderType `json:"type"`
	LimitPrice     float64   `json:"limit_price,omitempty"` // set iff Type == OrderTypeLimit
	Reason         string    `json:"reason,omitempty"`      // free-text provenance
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the signal shape. It does not consult risk state.
func (s TradeSignal) Validate() error {
	if s.AccountID == "" {
		return fmt.Errorf("signal missing account id")
	}
	if s.Symbol == "" {
		return fmt.Errorf("signal missing symbol")
	}
	if s.Side != OrderSideBuy && s.Side != OrderSideSell {
		return fmt.Errorf("invalid side %q", s.Side)
	}
	if s.Qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", s.Qty)
	}
	switch s.Type {
	case OrderTypeMarket:
		if s.LimitPrice != 0 {
			return fmt.Errorf("market order must not carry a limit price")
		}
	case OrderTypeLimit:
		if s.LimitPrice <= 0 {
			return fmt.Errorf("limit order requires a positive limit price, got %v", s.LimitPrice)
		}
	default:
		return fmt.Errorf("invalid order type %q", s.Type)
	}
	return nil
}

// ClientOrderID returns the stable identifier used for idempotent dispatch.
// A caller-supplied idempotency key wins; otherwise the key is derived from
// the signal content plus an hourly time bucket, so retries of the same
// signal map to the same broker order.
func (s TradeSignal) ClientOrderID() string {
	if s.IdempotencyKey != "" {
		return s.IdempotencyKey
	}
	bucket := s.CreatedAt.UTC().Format("2006-01-02T15")
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%v|%s|%v|%s",
		s.AccountID, s.Symbol, s.Side, s.Qty, s.Type, s.LimitPrice, bucket))
	return "sig-" + hex.EncodeToString(h[:12])
}

// SignedQty returns the quantity with buy positive and sell negative, the
// convention used for net position tracking.
func (s TradeSignal) SignedQty() float64 {
	if s.Side == OrderSideSell {
		return -s.Qty
	}
	return s.Qty
}

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order is the unit of execution. It is created by the executor at dispatch
// time and mutated only by the executor in response to broker results; access
// is serialized by ClientOrderID.
type Order struct {
	ClientOrderID  string
	BrokerOrderID  string // empty until acknowledged by the broker
	AccountID      string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Qty            float64
	LimitPrice     float64
	FilledQty      float64
	FilledAvgPrice float64
	Status         OrderStatus
	Reason         string // broker rejection reason, if any
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Metadata       map[string]string
}

// NewOrder builds a fresh order in state "new" from an approved signal.
func NewOrder(s TradeSignal, now time.Time) *Order {
	return &Order{
		ClientOrderID: s.ClientOrderID(),
		AccountID:     s.AccountID,
		Symbol:        s.Symbol,
		Side:          s.Side,
		Type:          s.Type,
		Qty:           s.Qty,
		LimitPrice:    s.LimitPrice,
		Status:        OrderStatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      make(map[string]string),
	}
}

// SignedQty returns the order quantity with buy positive and sell negative.
func (o *Order) SignedQty() float64 {
	if o.Side == OrderSideSell {
		return -o.Qty
	}
	return o.Qty
}

// UnfilledSignedQty returns the not-yet-executed remainder with buy positive
// and sell negative. Cancelling a partially filled order returns only this
// remainder to the risk counters; the executed shares are real exposure.
func (o *Order) UnfilledSignedQty() float64 {
	rem := o.Qty - o.FilledQty
	if rem < 0 {
		rem = 0
	}
	if o.Side == OrderSideSell {
		return -rem
	}
	return rem
}

// Clone returns a deep copy. Broker adapters return clones so callers never
// alias adapter-internal state.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Metadata = make(map[string]string, len(o.Metadata))
	for k, v := range o.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// ---------------------------------------------------------------------------
// Decision
// ---------------------------------------------------------------------------

// Decision is the ephemeral outcome of a risk evaluation. It is not persisted.
type Decision struct {
	Approved bool
	Reason   RejectReason // set on rejection
	Detail   string       // human-readable context for the rejection
}

// Approve returns an approving decision.
func Approve() Decision { return Decision{Approved: true} }

// Reject returns a rejecting decision with the given reason code and detail.
func Reject(reason RejectReason, detail string) Decision {
	return Decision{Approved: false, Reason: reason, Detail: detail}
}

// ---------------------------------------------------------------------------
// Audit records
// ---------------------------------------------------------------------------

// TradeRecord is a write-once audit entry mirroring a dispatched order.
type TradeRecord struct {
	ID             string
	ClientOrderID  string
	BrokerOrderID  string
	AccountID      string
	Symbol         string
	Side           OrderSide
	Qty            float64
	FilledQty      float64
	FilledAvgPrice float64
	Status         OrderStatus
	Reason         string
	RecordedAt     time.Time
}

// SettlementRecord is a write-once audit entry for a settled (closed) trade.
type SettlementRecord struct {
	ID            string
	ClientOrderID string
	AccountID     string
	Symbol        string
	Qty           float64
	RealizedPnL   float64
	SettledAt     time.Time
}
