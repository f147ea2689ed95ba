// Package httpapi serves the operational status API: order lookups, risk
// counter snapshots, and order cancellation. It is a thin read-mostly surface
// over the store and the engine; all trading decisions stay in the engine.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"tradegate/internal/domain"
	"tradegate/internal/engine"
	"tradegate/internal/store"
)

// StatusServer serves the status HTTP API.
type StatusServer struct {
	orders store.OrderStore
	risk   *engine.RiskEngine
	exec   *engine.TradeExecutor
	log    *slog.Logger
}

// NewStatusServer creates a status server over the given pipeline components.
func NewStatusServer(orders store.OrderStore, risk *engine.RiskEngine, exec *engine.TradeExecutor, log *slog.Logger) *StatusServer {
	return &StatusServer{
		orders: orders,
		risk:   risk,
		exec:   exec,
		log:    log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *StatusServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/v1/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/v1/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("POST /api/v1/orders/{id}/cancel", s.handleCancelOrder)
	mux.HandleFunc("GET /api/v1/accounts/{id}/risk", s.handleRisk)
}

// Handler returns the routed http.Handler.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *StatusServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []domain.Order
		err    error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "":
		orders, err = s.orders.ListOpenOrders(r.Context())
	case string(domain.OrderStatusNew),
		string(domain.OrderStatusPartiallyFilled),
		string(domain.OrderStatusFilled),
		string(domain.OrderStatusRejected),
		string(domain.OrderStatusCancelled):
		orders, err = s.orders.ListOrders(r.Context(), domain.OrderStatus(status))
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+status)
		return
	}
	if err != nil {
		s.log.Error("listing orders", "error", err)
		writeError(w, http.StatusInternalServerError, "listing orders failed")
		return
	}

	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, orderView(&orders[i]))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	writeJSON(w, OrdersResponse{Orders: views, Count: len(views)})
}

func (s *StatusServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := s.orders.GetOrder(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown order "+id)
		return
	}
	if err != nil {
		s.log.Error("loading order", "clientOrderID", id, "error", err)
		writeError(w, http.StatusInternalServerError, "loading order failed")
		return
	}
	writeJSON(w, orderView(order))
}

func (s *StatusServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := s.exec.Cancel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown order "+id)
		return
	}
	if err != nil {
		s.log.Warn("cancel failed", "clientOrderID", id, "error", err)
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, orderView(order))
}

func (s *StatusServer) handleRisk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, riskView(id, s.risk.Snapshot(id)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
