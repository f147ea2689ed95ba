package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradegate/internal/broker"
	"tradegate/internal/domain"
	"tradegate/internal/store"
	"tradegate/internal/util"
)

// ErrLiveGate is returned by NewTradeExecutor when live trading is disabled
// but a non-paper adapter was supplied. The gate is enforced once, at
// construction, never re-checked per call.
var ErrLiveGate = errors.New("live trading disabled: executor requires the paper adapter")

// ErrRetriesExhausted marks a dispatch whose outcome is unknown: every
// attempt failed transiently and the order was left in "new" for the
// reconciliation pass. The risk reservation stays held until reconciliation
// resolves the order.
var ErrRetriesExhausted = errors.New("broker retries exhausted, order awaiting reconciliation")

// ExecutorOpts carries the retry and timeout knobs for order dispatch.
type ExecutorOpts struct {
	MaxAttempts  int           // bounded attempt count per dispatch
	BaseDelay    time.Duration // first backoff step, doubled per retry
	OrderTimeout time.Duration // per-attempt broker call timeout
}

func (o ExecutorOpts) withDefaults() ExecutorOpts {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if o.OrderTimeout <= 0 {
		o.OrderTimeout = 10 * time.Second
	}
	return o
}

// TradeExecutor owns the idempotent dispatch-to-broker protocol and the
// order lifecycle. All state transitions for one client order ID are
// serialized by a per-key mutex; the risk reservation is committed before
// the broker call and no risk lock is held while a call is in flight.
type TradeExecutor struct {
	adapter broker.Adapter
	orders  store.OrderStore
	risk    *RiskEngine
	opts    ExecutorOpts
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	keyLocks map[string]*keyLock
}

// keyLock is a reference-counted mutex; entries are evicted from the map once
// the last holder releases, so the map does not grow with order history.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewTradeExecutor wires an executor to its broker adapter. When
// liveTradingEnabled is false the adapter must be the paper simulator; this
// is a hard safety gate, not a hint.
func NewTradeExecutor(
	adapter broker.Adapter,
	orders store.OrderStore,
	risk *RiskEngine,
	liveTradingEnabled bool,
	opts ExecutorOpts,
	log *slog.Logger,
) (*TradeExecutor, error) {
	if !liveTradingEnabled && adapter.Name() != broker.PaperName {
		return nil, fmt.Errorf("%w (got adapter %q)", ErrLiveGate, adapter.Name())
	}
	return &TradeExecutor{
		adapter:  adapter,
		orders:   orders,
		risk:     risk,
		opts:     opts.withDefaults(),
		log:      log.With("component", "executor", "adapter", adapter.Name()),
		now:      time.Now,
		keyLocks: make(map[string]*keyLock),
	}, nil
}

// lockKey acquires the mutex serializing all work for one client order ID.
func (x *TradeExecutor) lockKey(key string) *keyLock {
	x.mu.Lock()
	l, ok := x.keyLocks[key]
	if !ok {
		l = &keyLock{}
		x.keyLocks[key] = l
	}
	l.refs++
	x.mu.Unlock()

	l.mu.Lock()
	return l
}

// unlockKey releases the key's mutex and drops the map entry when no other
// holder remains.
func (x *TradeExecutor) unlockKey(key string, l *keyLock) {
	l.mu.Unlock()

	x.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(x.keyLocks, key)
	}
	x.mu.Unlock()
}

// Execute dispatches an approved signal to the broker. The decision must be
// an approval: executing an unapproved signal is an invariant breach and
// panics rather than returning an error.
//
// If an order for the signal's idempotency key already exists and is
// non-terminal or filled, it is returned unchanged — at most one live
// submission per signal, even across orchestrator retries or restarts. A
// prior rejected or cancelled order permits a fresh submission.
func (x *TradeExecutor) Execute(ctx context.Context, signal domain.TradeSignal, decision domain.Decision) (*domain.Order, error) {
	if !decision.Approved {
		panic(fmt.Sprintf("TradeExecutor.Execute called with unapproved signal %q", signal.ClientOrderID()))
	}

	key := signal.ClientOrderID()
	lock := x.lockKey(key)
	defer x.unlockKey(key, lock)

	existing, err := x.orders.GetOrder(ctx, key)
	switch {
	case err == nil:
		if !existing.Status.Terminal() || existing.Status == domain.OrderStatusFilled {
			// Duplicate submission of the same signal: the caller's fresh
			// reservation is redundant, give it back.
			x.risk.Release(signal.AccountID, signal.Symbol, signal.SignedQty())
			return existing, nil
		}
		// Terminal failure on file: resubmission allowed, dispatch fresh.
	case !errors.Is(err, store.ErrNotFound):
		x.risk.Release(signal.AccountID, signal.Symbol, signal.SignedQty())
		return nil, fmt.Errorf("loading order %q: %w", key, err)
	}

	order := domain.NewOrder(signal, x.now())
	if err := x.orders.SaveOrder(ctx, order); err != nil {
		x.risk.Release(signal.AccountID, signal.Symbol, signal.SignedQty())
		return nil, fmt.Errorf("persisting order %q: %w", key, err)
	}

	return x.dispatch(ctx, order)
}

// dispatch runs the bounded-retry placement loop. Transient failures back
// off exponentially and leave the order in "new" between attempts; a
// permanent failure rejects the order and releases its reservation.
func (x *TradeExecutor) dispatch(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < x.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := util.Sleep(ctx, util.Backoff(x.opts.BaseDelay, attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, x.opts.OrderTimeout)
		placed, err := x.adapter.PlaceOrder(callCtx, order)
		cancel()

		if err == nil {
			x.applyBrokerView(ctx, order, placed)
			return order, nil
		}
		lastErr = err

		if !broker.IsTransient(err) {
			x.log.Warn("permanent broker rejection",
				"clientOrderID", order.ClientOrderID, "error", err)
			x.transition(ctx, order, domain.OrderStatusRejected, broker.Reason(err))
			return order, err
		}
		x.log.Warn("transient broker error",
			"clientOrderID", order.ClientOrderID, "attempt", attempt+1, "error", err)
	}

	// Outcome unknown: the order stays "new" and keeps its reservation until
	// reconciliation resolves it. The idempotency key prevents a duplicate
	// live order in the meantime.
	return order, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// applyBrokerView merges the broker's view of an order into ours, enforcing
// the state machine. An illegal transition reported by the broker is logged
// and ignored, never propagated.
func (x *TradeExecutor) applyBrokerView(ctx context.Context, order *domain.Order, placed *domain.Order) {
	if placed.BrokerOrderID != "" {
		order.BrokerOrderID = placed.BrokerOrderID
	}

	// Fills first: a cancellation that carries fills must release only the
	// unfilled remainder.
	if placed.FilledQty > order.FilledQty {
		order.FilledQty = placed.FilledQty
		order.FilledAvgPrice = placed.FilledAvgPrice
	}

	if placed.Status != order.Status {
		if !order.Status.CanTransition(placed.Status) {
			x.log.Error("ignoring illegal order transition",
				"clientOrderID", order.ClientOrderID,
				"from", string(order.Status), "to", string(placed.Status))
			return
		}
		order.Status = placed.Status
		if placed.Status == domain.OrderStatusRejected || placed.Status == domain.OrderStatusCancelled {
			order.Reason = placed.Reason
			x.risk.Release(order.AccountID, order.Symbol, order.UnfilledSignedQty())
		}
	}
	order.UpdatedAt = x.now()

	if err := x.orders.UpdateOrder(ctx, order); err != nil {
		x.log.Error("persisting order update",
			"clientOrderID", order.ClientOrderID, "error", err)
	}
}

// transition moves an order to a new status, persists it, and releases the
// risk reservation for rejected or cancelled orders.
func (x *TradeExecutor) transition(ctx context.Context, order *domain.Order, next domain.OrderStatus, reason string) {
	if !order.Status.CanTransition(next) {
		x.log.Error("ignoring illegal order transition",
			"clientOrderID", order.ClientOrderID,
			"from", string(order.Status), "to", string(next))
		return
	}
	order.Status = next
	order.Reason = reason
	order.UpdatedAt = x.now()

	if next == domain.OrderStatusRejected || next == domain.OrderStatusCancelled {
		x.risk.Release(order.AccountID, order.Symbol, order.UnfilledSignedQty())
	}

	if err := x.orders.UpdateOrder(ctx, order); err != nil {
		x.log.Error("persisting order transition",
			"clientOrderID", order.ClientOrderID, "error", err)
	}
}

// Cancel requests cancellation of a non-terminal order by client order ID.
func (x *TradeExecutor) Cancel(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	lock := x.lockKey(clientOrderID)
	defer x.unlockKey(clientOrderID, lock)

	order, err := x.orders.GetOrder(ctx, clientOrderID)
	if err != nil {
		return nil, fmt.Errorf("loading order %q: %w", clientOrderID, err)
	}
	if order.Status.Terminal() {
		return order, fmt.Errorf("order %q already %s", clientOrderID, order.Status)
	}
	if order.BrokerOrderID == "" {
		return order, fmt.Errorf("order %q has no broker order id yet", clientOrderID)
	}

	if err := x.adapter.CancelOrder(ctx, order.BrokerOrderID); err != nil {
		return order, fmt.Errorf("cancelling order %q: %w", clientOrderID, err)
	}
	x.transition(ctx, order, domain.OrderStatusCancelled, "cancelled by request")
	return order, nil
}

// Reconcile polls the broker for every non-terminal order that has a broker
// order ID and applies the broker's view. It returns the number of orders
// that reached a terminal state. Orders still waiting for their first broker
// acknowledgement are skipped; they resolve on the next dispatch retry.
func (x *TradeExecutor) Reconcile(ctx context.Context) (int, error) {
	open, err := x.orders.ListOpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing open orders: %w", err)
	}

	resolved := 0
	for i := range open {
		if open[i].BrokerOrderID == "" {
			continue
		}
		key := open[i].ClientOrderID

		lock := x.lockKey(key)
		// The listing is a snapshot: a cancel or a dispatch retry can land
		// between it and the lock. Re-load under the lock and skip orders
		// that already reached a terminal state, otherwise their reservation
		// would be released a second time.
		order, err := x.orders.GetOrder(ctx, key)
		if err != nil {
			x.unlockKey(key, lock)
			x.log.Warn("reconcile load failed", "clientOrderID", key, "error", err)
			continue
		}
		if order.Status.Terminal() {
			x.unlockKey(key, lock)
			continue
		}

		current, err := x.adapter.GetOrderStatus(ctx, order.BrokerOrderID)
		if err != nil {
			x.unlockKey(key, lock)
			x.log.Warn("reconcile poll failed", "clientOrderID", key, "error", err)
			continue
		}
		x.applyBrokerView(ctx, order, current)
		if order.Status.Terminal() {
			resolved++
		}
		x.unlockKey(key, lock)
	}

	x.log.Info("reconciliation pass complete", "open", len(open), "resolved", resolved)
	return resolved, nil
}
