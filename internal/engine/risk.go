package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/util"
)

// RiskLimits is the per-tier static configuration. It is loaded at
// construction and never changes during a run.
type RiskLimits struct {
	MaxDailyLoss    float64
	MaxPositionSize float64
	MaxOpenTrades   int
}

// RiskState holds the mutable per-account counters. It is owned exclusively
// by the RiskEngine and mutated only inside an account's critical section.
type RiskState struct {
	DayKey           string
	RealizedLoss     float64
	OpenTrades       int
	PositionBySymbol map[string]float64 // net: buys add, sells subtract
}

// accountState pairs one account's counters with the mutex that serializes
// every evaluation and adjustment for that account.
type accountState struct {
	mu    sync.Mutex
	state RiskState
}

// RiskEngine gates signals against account-level limits. Evaluation and
// counter commit form a single critical section per account, so two signals
// for the same account can never both pass a limit check against stale
// counters. Approval reserves capacity optimistically; Release returns it
// when the order ultimately fails at the broker.
type RiskEngine struct {
	limits   RiskLimits
	calendar *util.TradingCalendar
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	accounts map[string]*accountState
}

// NewRiskEngine creates a RiskEngine with the given tier limits. The calendar
// defines the trading-day boundary used for daily counter resets.
func NewRiskEngine(limits RiskLimits, calendar *util.TradingCalendar, log *slog.Logger) *RiskEngine {
	return &RiskEngine{
		limits:   limits,
		calendar: calendar,
		now:      time.Now,
		log:      log.With("component", "risk"),
		accounts: make(map[string]*accountState),
	}
}

// account returns the state for an account, creating it on first use.
func (e *RiskEngine) account(id string) *accountState {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.accounts[id]
	if !ok {
		acct = &accountState{state: RiskState{PositionBySymbol: make(map[string]float64)}}
		e.accounts[id] = acct
	}
	return acct
}

// rollover zeroes the counters when the trading day has advanced, reporting
// whether it did. Must be called with the account mutex held, so no
// evaluation can observe a half-reset state.
func (e *RiskEngine) rollover(st *RiskState) bool {
	day := e.calendar.DayKey(e.now())
	if st.DayKey == day {
		return false
	}
	st.DayKey = day
	st.RealizedLoss = 0
	st.OpenTrades = 0
	st.PositionBySymbol = make(map[string]float64)
	return true
}

// Evaluate checks the signal against the account's limits. On approval the
// counter updates are committed before returning; on rejection the state is
// untouched. Rejections are reported with a reason code and are never
// retried by the engine.
func (e *RiskEngine) Evaluate(signal domain.TradeSignal) domain.Decision {
	if err := signal.Validate(); err != nil {
		return domain.Reject(domain.RejectInvalid, err.Error())
	}

	acct := e.account(signal.AccountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	st := &acct.state
	e.rollover(st)

	if st.RealizedLoss >= e.limits.MaxDailyLoss {
		return domain.Reject(domain.RejectDailyLoss,
			fmt.Sprintf("realized loss %.2f at or over daily limit %.2f", st.RealizedLoss, e.limits.MaxDailyLoss))
	}
	if st.OpenTrades+1 > e.limits.MaxOpenTrades {
		return domain.Reject(domain.RejectOpenTrades,
			fmt.Sprintf("open trades %d at limit %d", st.OpenTrades, e.limits.MaxOpenTrades))
	}
	newPos := st.PositionBySymbol[signal.Symbol] + signal.SignedQty()
	if math.Abs(newPos) > e.limits.MaxPositionSize {
		return domain.Reject(domain.RejectPositionSize,
			fmt.Sprintf("position %.2f in %s would exceed limit %.2f", newPos, signal.Symbol, e.limits.MaxPositionSize))
	}

	// Commit the reservation.
	st.OpenTrades++
	st.PositionBySymbol[signal.Symbol] = newPos
	return domain.Approve()
}

// Release returns a previously committed reservation after an order failed
// permanently or was cancelled, so a failed order reclaims its risk budget.
func (e *RiskEngine) Release(accountID, symbol string, signedQty float64) {
	acct := e.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	st := &acct.state
	if e.rollover(st) {
		// The reservation belonged to a previous trading day; the rollover
		// already zeroed its counters. Subtracting here would drive the
		// fresh day's position negative from zero.
		e.log.Debug("dropping release from previous trading day",
			"account", accountID, "symbol", symbol, "signedQty", signedQty)
		return
	}

	if st.OpenTrades > 0 {
		st.OpenTrades--
	}
	st.PositionBySymbol[symbol] -= signedQty
	e.log.Debug("released risk reservation",
		"account", accountID, "symbol", symbol, "signedQty", signedQty)
}

// Settle applies the realized P&L of a closed trade to the daily loss
// counter and frees its open-trade slot. Losses are passed as negative P&L.
func (e *RiskEngine) Settle(accountID string, realizedPnL float64) {
	acct := e.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	st := &acct.state
	e.rollover(st)

	if realizedPnL < 0 {
		st.RealizedLoss += -realizedPnL
	}
	if st.OpenTrades > 0 {
		st.OpenTrades--
	}
}

// Snapshot returns a copy of the account's current counters.
func (e *RiskEngine) Snapshot(accountID string) RiskState {
	acct := e.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	e.rollover(&acct.state)

	cp := acct.state
	cp.PositionBySymbol = make(map[string]float64, len(acct.state.PositionBySymbol))
	for k, v := range acct.state.PositionBySymbol {
		cp.PositionBySymbol[k] = v
	}
	return cp
}

// SetClock overrides the engine's time source. Tests use it to drive
// day-boundary rollovers.
func (e *RiskEngine) SetClock(now func() time.Time) {
	e.now = now
}
