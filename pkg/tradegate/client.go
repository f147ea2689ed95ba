// Package tradegate provides a Go client for the tradegate status API.
package tradegate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Order is the client-side view of an order.
type Order struct {
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

// Risk is the client-side view of an account's risk counters.
type Risk struct {
	AccountID        string             `json:"account_id"`
	Day              string             `json:"day"`
	RealizedLoss     float64            `json:"realized_loss"`
	OpenTrades       int                `json:"open_trades"`
	PositionBySymbol map[string]float64 `json:"position_by_symbol"`
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
	Count  int     `json:"count"`
}

// Client talks to a running tradegate status API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListOrders returns orders with the given status; an empty status returns
// all open (non-terminal) orders.
func (c *Client) ListOrders(ctx context.Context, status string) ([]Order, error) {
	path := "/api/v1/orders"
	if status != "" {
		path += "?status=" + status
	}
	var resp ordersResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetOrder returns one order by client order ID.
func (c *Client) GetOrder(ctx context.Context, clientOrderID string) (*Order, error) {
	var o Order
	if err := c.get(ctx, "/api/v1/orders/"+clientOrderID, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder requests cancellation of a non-terminal order and returns its
// updated state.
func (c *Client) CancelOrder(ctx context.Context, clientOrderID string) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders/"+clientOrderID+"/cancel", &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetRisk returns the account's current risk counters.
func (c *Client) GetRisk(ctx context.Context, accountID string) (*Risk, error) {
	var r Risk
	if err := c.get(ctx, "/api/v1/accounts/"+accountID+"/risk", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
