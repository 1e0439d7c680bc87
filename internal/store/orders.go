package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/tracking"
)

var _ tracking.Guard = (*SQLiteStore)(nil)

// orderNumberBase offsets customer facing order numbers from row ids.
const orderNumberBase = 1000

// CreateOrder persists order with its lines and clears the session's cart.
// ID and Number are assigned by the store, and Key when the caller leaves
// it empty.
func (s *SQLiteStore) CreateOrder(ctx context.Context, sessionID string, order *commerce.Order) (*commerce.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	key := order.Key
	if key == "" {
		key = "order_" + uuid.NewString()
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (order_key, session_id, currency, subtotal, tax, shipping, total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, sessionID, order.Currency, order.Subtotal, order.Tax, order.Shipping, order.Total, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	number := order.Number
	if number == "" {
		number = strconv.FormatInt(orderNumberBase+id, 10)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET number = ? WHERE id = ?`, number, id); err != nil {
		return nil, fmt.Errorf("failed to set order number: %w", err)
	}

	out := *order
	out.ID = id
	out.Number = number
	out.Key = key
	out.Lines = make([]commerce.OrderLine, len(order.Lines))
	for i, line := range order.Lines {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, quantity, total) VALUES (?, ?, ?, ?, ?)`,
			id, line.ProductID, line.Name, line.Quantity, line.Total,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item: %w", err)
		}
		line.ID, err = res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert id: %w", err)
		}
		out.Lines[i] = line
	}

	if sessionID != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE session_id = ?`, sessionID); err != nil {
			return nil, fmt.Errorf("failed to clear cart: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return &out, nil
}

func (s *SQLiteStore) Order(ctx context.Context, id int64) (*commerce.Order, error) {
	var o commerce.Order
	err := s.db.QueryRowContext(ctx,
		`SELECT id, number, order_key, currency, subtotal, tax, shipping, total FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.Number, &o.Key, &o.Currency, &o.Subtotal, &o.Tax, &o.Shipping, &o.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, name, quantity, total FROM order_items WHERE order_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line commerce.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Name, &line.Quantity, &line.Total); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	return &o, nil
}

func (s *SQLiteStore) CountOrders(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			o.id, o.number, o.currency, o.total, o.created_at,
			(SELECT COALESCE(SUM(quantity), 0) FROM order_items WHERE order_id = o.id) AS items,
			EXISTS (SELECT 1 FROM order_meta WHERE order_id = o.id AND key = ?) AS tracked
		FROM orders o
		ORDER BY o.id DESC
	`, tracking.TrackedMetaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []OrderSummary
	for rows.Next() {
		var o OrderSummary
		var createdAt int64
		if err := rows.Scan(&o.ID, &o.Number, &o.Currency, &o.Total, &createdAt, &o.Items, &o.Tracked); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.CreatedAt = time.Unix(createdAt, 0)
		orders = append(orders, o)
	}

	return orders, nil
}

func (s *SQLiteStore) IsTracked(ctx context.Context, orderID int64) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM order_meta WHERE order_id = ? AND key = ?`, orderID, tracking.TrackedMetaKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read tracked flag: %w", err)
	}
	return value == "yes", nil
}

// TryMarkTracked sets the tracked flag and reports whether this call set it.
func (s *SQLiteStore) TryMarkTracked(ctx context.Context, orderID int64) (bool, error) {
	// INSERT OR IGNORE against the unique (order_id, key) index
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO order_meta (order_id, key, value) VALUES (?, ?, 'yes')`,
		orderID, tracking.TrackedMetaKey,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order tracked: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
