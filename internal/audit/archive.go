package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ Sink = (*ArchiveSink)(nil)

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// tradeRow is the Parquet schema for archived trade records.
type tradeRow struct {
	ID             string  `parquet:"id"`
	ClientOrderID  string  `parquet:"client_order_id"`
	BrokerOrderID  string  `parquet:"broker_order_id"`
	AccountID      string  `parquet:"account_id"`
	Symbol         string  `parquet:"symbol"`
	Side           string  `parquet:"side"`
	Qty            float64 `parquet:"qty"`
	FilledQty      float64 `parquet:"filled_qty"`
	FilledAvgPrice float64 `parquet:"filled_avg_price"`
	Status         string  `parquet:"status"`
	Reason         string  `parquet:"reason"`
	RecordedAt     int64   `parquet:"recorded_at,timestamp(millisecond)"` // Unix ms
}

// settlementRow is the Parquet schema for archived settlement records.
type settlementRow struct {
	ID            string  `parquet:"id"`
	ClientOrderID string  `parquet:"client_order_id"`
	AccountID     string  `parquet:"account_id"`
	Symbol        string  `parquet:"symbol"`
	Qty           float64 `parquet:"qty"`
	RealizedPnL   float64 `parquet:"realized_pnl"`
	SettledAt     int64   `parquet:"settled_at,timestamp(millisecond)"` // Unix ms
}

// ---------------------------------------------------------------------------
// ArchiveSink
// ---------------------------------------------------------------------------

// ArchiveSink keeps a local append-only Parquet archive of audit records,
// one file per day per record kind:
//
//	<dataDir>/audit/trades/<YYYY-MM-DD>.parquet
//	<dataDir>/audit/settlements/<YYYY-MM-DD>.parquet
//
// Write failures are logged and dropped like any other audit failure.
type ArchiveSink struct {
	dataDir string
	log     *slog.Logger
	mu      sync.Mutex // serializes read-merge-write per process
}

// NewArchiveSink creates an ArchiveSink rooted at dataDir.
func NewArchiveSink(dataDir string, log *slog.Logger) *ArchiveSink {
	return &ArchiveSink{dataDir: dataDir, log: log.With("sink", "archive")}
}

// RecordTrade appends the order's audit record to today's trade archive.
func (s *ArchiveSink) RecordTrade(_ context.Context, order *domain.Order) error {
	rec := TradeRecordFromOrder(order)
	row := tradeRow{
		ID:             rec.ID,
		ClientOrderID:  rec.ClientOrderID,
		BrokerOrderID:  rec.BrokerOrderID,
		AccountID:      rec.AccountID,
		Symbol:         rec.Symbol,
		Side:           string(rec.Side),
		Qty:            rec.Qty,
		FilledQty:      rec.FilledQty,
		FilledAvgPrice: rec.FilledAvgPrice,
		Status:         string(rec.Status),
		Reason:         rec.Reason,
		RecordedAt:     rec.RecordedAt.UnixMilli(),
	}
	path := s.archivePath("trades", rec.RecordedAt)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendRows(path, row, func(r tradeRow) string { return r.ID }, func(r tradeRow) int64 { return r.RecordedAt }); err != nil {
		s.log.Warn("archiving trade record failed, dropping", "path", path, "error", err)
	}
	return nil
}

// RecordSettlement appends the settlement to today's settlement archive.
func (s *ArchiveSink) RecordSettlement(_ context.Context, rec domain.SettlementRecord) error {
	row := settlementRow{
		ID:            rec.ID,
		ClientOrderID: rec.ClientOrderID,
		AccountID:     rec.AccountID,
		Symbol:        rec.Symbol,
		Qty:           rec.Qty,
		RealizedPnL:   rec.RealizedPnL,
		SettledAt:     rec.SettledAt.UnixMilli(),
	}
	path := s.archivePath("settlements", rec.SettledAt)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendRows(path, row, func(r settlementRow) string { return r.ID }, func(r settlementRow) int64 { return r.SettledAt }); err != nil {
		s.log.Warn("archiving settlement record failed, dropping", "path", path, "error", err)
	}
	return nil
}

// archivePath returns <dataDir>/audit/<kind>/<YYYY-MM-DD>.parquet.
func (s *ArchiveSink) archivePath(kind string, t time.Time) string {
	return filepath.Join(s.dataDir, "audit", kind, t.UTC().Format("2006-01-02")+".parquet")
}

// appendRows merges one row into the Parquet file at path, deduplicating by
// record ID. Parquet files are immutable, so append is read-merge-write.
func appendRows[T any](path string, row T, id func(T) string, ts func(T) int64) error {
	existing, _ := parquet.ReadFile[T](path) // Missing file -> start empty.

	seen := make(map[string]T, len(existing)+1)
	for _, r := range existing {
		seen[id(r)] = r
	}
	seen[id(row)] = row

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return ts(merged[i]) < ts(merged[j]) })

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, merged); err != nil {
		return fmt.Errorf("writing archive %s: %w", path, err)
	}
	return nil
}
