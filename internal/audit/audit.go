// Package audit provides fire-and-forget sinks for the trade audit trail.
// Audit delivery is best-effort: a sink failure must never fail or roll back
// a trade that already executed at the broker.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tradegate/internal/domain"
)

// Sink appends trade and settlement records to an external ledger. All
// implementations log and absorb their own failures; a non-nil error is
// informational and never unwinds execution.
type Sink interface {
	// RecordTrade appends an audit entry mirroring a dispatched order.
	RecordTrade(ctx context.Context, order *domain.Order) error

	// RecordSettlement appends a settlement entry for a closed trade.
	RecordSettlement(ctx context.Context, rec domain.SettlementRecord) error
}

// TradeRecordFromOrder builds a write-once audit record from an order
// snapshot, stamped with a fresh record ID.
func TradeRecordFromOrder(o *domain.Order) domain.TradeRecord {
	return domain.TradeRecord{
		ID:             uuid.NewString(),
		ClientOrderID:  o.ClientOrderID,
		BrokerOrderID:  o.BrokerOrderID,
		AccountID:      o.AccountID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Qty:            o.Qty,
		FilledQty:      o.FilledQty,
		FilledAvgPrice: o.FilledAvgPrice,
		Status:         o.Status,
		Reason:         o.Reason,
		RecordedAt:     time.Now().UTC(),
	}
}
