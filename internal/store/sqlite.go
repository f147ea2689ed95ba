package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tradegate/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ OrderStore = (*SQLiteStore)(nil)

const ordersSchema = `
CREATE TABLE IF NOT EXISTS orders (
	client_order_id  TEXT PRIMARY KEY,
	broker_order_id  TEXT NOT NULL DEFAULT '',
	account_id       TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	qty              REAL NOT NULL,
	limit_price      REAL NOT NULL DEFAULT 0,
	filled_qty       REAL NOT NULL DEFAULT 0,
	filled_avg_price REAL NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	metadata         TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id);
`

// SQLiteStore implements OrderStore backed by a SQLite database, making the
// executor's idempotency guarantee durable across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %q: %w", dbPath, err)
	}
	if _, err := db.Exec(ordersSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying orders schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveOrder inserts a new order, replacing any prior record with the same
// client order ID.
func (s *SQLiteStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	meta, err := json.Marshal(order.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling order metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (
			client_order_id, broker_order_id, account_id, symbol, side, type,
			qty, limit_price, filled_qty, filled_avg_price, status, reason,
			created_at, updated_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ClientOrderID, order.BrokerOrderID, order.AccountID, order.Symbol,
		string(order.Side), string(order.Type), order.Qty, order.LimitPrice,
		order.FilledQty, order.FilledAvgPrice, string(order.Status), order.Reason,
		order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli(), string(meta))
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", order.ClientOrderID, err)
	}
	return nil
}

// GetOrder retrieves a single order by client order ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT client_order_id, broker_order_id, account_id, symbol, side, type,
		       qty, limit_price, filled_qty, filled_avg_price, status, reason,
		       created_at, updated_at, metadata
		FROM orders WHERE client_order_id = ?`, clientOrderID)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading order %q: %w", clientOrderID, err)
	}
	return o, nil
}

// ListOrders returns all orders with the given status.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return s.queryOrders(ctx, `WHERE status = ?`, string(status))
}

// ListOpenOrders returns all non-terminal orders.
func (s *SQLiteStore) ListOpenOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx, `WHERE status IN (?, ?)`,
		string(domain.OrderStatusNew), string(domain.OrderStatusPartiallyFilled))
}

// UpdateOrder persists changes to an existing order.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	meta, err := json.Marshal(order.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling order metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			broker_order_id = ?, filled_qty = ?, filled_avg_price = ?,
			status = ?, reason = ?, updated_at = ?, metadata = ?
		WHERE client_order_id = ?`,
		order.BrokerOrderID, order.FilledQty, order.FilledAvgPrice,
		string(order.Status), order.Reason, order.UpdatedAt.UnixMilli(),
		string(meta), order.ClientOrderID)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", order.ClientOrderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) queryOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_order_id, broker_order_id, account_id, symbol, side, type,
		       qty, limit_price, filled_qty, filled_avg_price, status, reason,
		       created_at, updated_at, metadata
		FROM orders `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o                    domain.Order
		side, typ, status    string
		createdMs, updatedMs int64
		meta                 string
	)
	err := row.Scan(&o.ClientOrderID, &o.BrokerOrderID, &o.AccountID, &o.Symbol,
		&side, &typ, &o.Qty, &o.LimitPrice, &o.FilledQty, &o.FilledAvgPrice,
		&status, &o.Reason, &createdMs, &updatedMs, &meta)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.UnixMilli(createdMs).UTC()
	o.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	o.Metadata = make(map[string]string)
	if err := json.Unmarshal([]byte(meta), &o.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling order metadata: %w", err)
	}
	return &o, nil
}
