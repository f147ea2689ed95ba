package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/util"
)

// Compile-time interface check.
var _ Sink = (*LedgerSink)(nil)

// LedgerSink posts audit records to an external ledger gateway over HTTP.
// Records are queued on a bounded channel drained by a background worker;
// when the queue is full or delivery fails, records are logged and dropped.
type LedgerSink struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger

	queue chan ledgerEntry
	quit  chan struct{}
	wg    sync.WaitGroup
}

type ledgerEntry struct {
	path    string
	payload any
}

// NewLedgerSink creates a LedgerSink for the given gateway endpoint and
// starts its delivery worker. queueSize bounds the local retry queue.
func NewLedgerSink(endpoint string, timeout time.Duration, queueSize int, log *slog.Logger) *LedgerSink {
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &LedgerSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log.With("sink", "ledger"),
		queue:    make(chan ledgerEntry, queueSize),
		quit:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.deliver()
	return s
}

// RecordTrade enqueues a trade record for delivery. A full queue drops the
// record rather than blocking trading.
func (s *LedgerSink) RecordTrade(_ context.Context, order *domain.Order) error {
	return s.enqueue("/v1/trades", TradeRecordFromOrder(order))
}

// RecordSettlement enqueues a settlement record for delivery.
func (s *LedgerSink) RecordSettlement(_ context.Context, rec domain.SettlementRecord) error {
	return s.enqueue("/v1/settlements", rec)
}

func (s *LedgerSink) enqueue(path string, payload any) error {
	select {
	case s.queue <- ledgerEntry{path: path, payload: payload}:
		return nil
	default:
		s.log.Warn("ledger queue full, dropping record", "path", path)
		return nil
	}
}

// deliver drains the queue until Close is called, then flushes what remains.
func (s *LedgerSink) deliver() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.queue:
			s.post(e)
		case <-s.quit:
			for {
				select {
				case e := <-s.queue:
					s.post(e)
				default:
					return
				}
			}
		}
	}
}

// post sends one record with a short retry. Failures are logged and dropped;
// the broker-side fill is the source of truth, so delivery is never allowed
// to affect a trade outcome.
func (s *LedgerSink) post(e ledgerEntry) {
	body, err := json.Marshal(e.payload)
	if err != nil {
		s.log.Error("marshalling ledger record", "path", e.path, "error", err)
		return
	}

	err = util.Retry(context.Background(), 2, 500*time.Millisecond, func() error {
		resp, err := s.client.Post(s.endpoint+e.path, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("ledger gateway returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("ledger delivery failed, dropping record", "path", e.path, "error", err)
	}
}

// Close stops the delivery worker after flushing queued records.
func (s *LedgerSink) Close() {
	close(s.quit)
	s.wg.Wait()
}
