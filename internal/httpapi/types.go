package httpapi

import (
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/engine"
)

// OrderView is the JSON representation of an order.
type OrderView struct {
	ClientOrderID  string    `json:"client_order_id"`
	BrokerOrderID  string    `json:"broker_order_id,omitempty"`
	AccountID      string    `json:"account_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Type           string    `json:"type"`
	Qty            float64   `json:"qty"`
	LimitPrice     float64   `json:"limit_price,omitempty"`
	FilledQty      float64   `json:"filled_qty"`
	FilledAvgPrice float64   `json:"filled_avg_price,omitempty"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func orderView(o *domain.Order) OrderView {
	return OrderView{
		ClientOrderID:  o.ClientOrderID,
		BrokerOrderID:  o.BrokerOrderID,
		AccountID:      o.AccountID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Type:           string(o.Type),
		Qty:            o.Qty,
		LimitPrice:     o.LimitPrice,
		FilledQty:      o.FilledQty,
		FilledAvgPrice: o.FilledAvgPrice,
		Status:         string(o.Status),
		Reason:         o.Reason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// OrdersResponse wraps an order listing.
type OrdersResponse struct {
	Orders []OrderView `json:"orders"`
	Count  int         `json:"count"`
}

// RiskView is the JSON representation of an account's risk counters.
type RiskView struct {
	AccountID        string             `json:"account_id"`
	Day              string             `json:"day"`
	RealizedLoss     float64            `json:"realized_loss"`
	OpenTrades       int                `json:"open_trades"`
	PositionBySymbol map[string]float64 `json:"position_by_symbol"`
}

func riskView(accountID string, st engine.RiskState) RiskView {
	return RiskView{
		AccountID:        accountID,
		Day:              st.DayKey,
		RealizedLoss:     st.RealizedLoss,
		OpenTrades:       st.OpenTrades,
		PositionBySymbol: st.PositionBySymbol,
	}
}
