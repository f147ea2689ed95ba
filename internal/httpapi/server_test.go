package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradegate/internal/broker"
	"tradegate/internal/domain"
	"tradegate/internal/engine"
	"tradegate/internal/store"
	"tradegate/internal/util"
)

// newTestServer wires a status server over a paper pipeline with one filled
// market order and one resting limit order.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	risk := engine.NewRiskEngine(
		engine.RiskLimits{MaxDailyLoss: 1000, MaxPositionSize: 100, MaxOpenTrades: 10},
		util.NewTradingCalendar("UTC"), log)
	orders := store.NewMemoryStore()

	paper := broker.NewPaperAdapter()
	paper.SetPrice("AAPL", 200)
	exec, err := engine.NewTradeExecutor(paper, orders, risk, false, engine.ExecutorOpts{}, log)
	if err != nil {
		t.Fatalf("building executor: %v", err)
	}

	place := func(sig domain.TradeSignal) {
		d := risk.Evaluate(sig)
		if !d.Approved {
			t.Fatalf("signal unexpectedly rejected: %+v", d)
		}
		if _, err := exec.Execute(context.Background(), sig, d); err != nil {
			t.Fatalf("executing signal: %v", err)
		}
	}

	place(domain.TradeSignal{
		AccountID: "acct-1", Symbol: "AAPL", Side: domain.OrderSideBuy,
		Qty: 10, Type: domain.OrderTypeMarket,
		IdempotencyKey: "ord-filled", CreatedAt: time.Now(),
	})
	place(domain.TradeSignal{
		AccountID: "acct-1", Symbol: "AAPL", Side: domain.OrderSideBuy,
		Qty: 5, Type: domain.OrderTypeLimit, LimitPrice: 150,
		IdempotencyKey: "ord-resting", CreatedAt: time.Now(),
	})

	srv := httptest.NewServer(NewStatusServer(orders, risk, exec, log).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	var body map[string]string
	if code := getJSON(t, srv.URL+"/api/v1/healthz", &body); code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("healthz body = %v", body)
	}
}

func TestListOrders(t *testing.T) {
	srv := newTestServer(t)

	// Default listing returns only open (non-terminal) orders.
	var open OrdersResponse
	if code := getJSON(t, srv.URL+"/api/v1/orders", &open); code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", code)
	}
	if open.Count != 1 || open.Orders[0].ClientOrderID != "ord-resting" {
		t.Errorf("open orders = %+v, want only ord-resting", open)
	}

	var filled OrdersResponse
	getJSON(t, srv.URL+"/api/v1/orders?status=filled", &filled)
	if filled.Count != 1 || filled.Orders[0].ClientOrderID != "ord-filled" {
		t.Errorf("filled orders = %+v, want only ord-filled", filled)
	}

	if code := getJSON(t, srv.URL+"/api/v1/orders?status=bogus", nil); code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", code)
	}
}

func TestGetOrder(t *testing.T) {
	srv := newTestServer(t)

	var view OrderView
	if code := getJSON(t, srv.URL+"/api/v1/orders/ord-filled", &view); code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", code)
	}
	if view.Status != string(domain.OrderStatusFilled) || view.FilledQty != 10 {
		t.Errorf("order view = %+v", view)
	}

	if code := getJSON(t, srv.URL+"/api/v1/orders/nope", nil); code != http.StatusNotFound {
		t.Errorf("unknown order status = %d, want 404", code)
	}
}

func TestCancelOrder(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/orders/ord-resting/cancel", "", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
	}
	var view OrderView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decoding cancel response: %v", err)
	}
	if view.Status != string(domain.OrderStatusCancelled) {
		t.Errorf("cancelled order status = %s", view.Status)
	}

	// A second cancel hits a terminal order.
	resp2, err := http.Post(srv.URL+"/api/v1/orders/ord-resting/cancel", "", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("double cancel status = %d, want 409", resp2.StatusCode)
	}
}

func TestRiskSnapshot(t *testing.T) {
	srv := newTestServer(t)

	var view RiskView
	if code := getJSON(t, srv.URL+"/api/v1/accounts/acct-1/risk", &view); code != http.StatusOK {
		t.Fatalf("risk status = %d, want 200", code)
	}
	if view.OpenTrades != 2 || view.PositionBySymbol["AAPL"] != 15 {
		t.Errorf("risk view = %+v, want 2 open trades and 15 AAPL", view)
	}
}
