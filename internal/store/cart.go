package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webextended/ga4-tracking/internal/commerce"
)

// AddToCart adds quantity of a product to the session's cart. Lines with the
// same product and chosen variation are merged.
func (s *SQLiteStore) AddToCart(ctx context.Context, sessionID string, productID int64, quantity int, variation []commerce.Attribute) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	if quantity < 1 {
		quantity = 1
	}
	if variation == nil {
		variation = []commerce.Attribute{}
	}
	variationJSON, err := json.Marshal(variation)
	if err != nil {
		return fmt.Errorf("failed to marshal variation: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cart_items (session_id, product_id, variation, quantity) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, product_id, variation) DO UPDATE SET quantity = quantity + excluded.quantity`,
		sessionID, productID, string(variationJSON), quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to add to cart: %w", err)
	}
	return nil
}

// Cart returns the session's cart. Lines whose product was deleted keep a nil
// Product and do not count toward the subtotal.
func (s *SQLiteStore) Cart(ctx context.Context, sessionID string) (*commerce.Cart, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, variation, quantity FROM cart_items WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	cart := &commerce.Cart{SessionID: sessionID}
	for rows.Next() {
		var line commerce.CartLine
		var variationJSON string
		if err := rows.Scan(&line.ProductID, &variationJSON, &line.Quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		if err := json.Unmarshal([]byte(variationJSON), &line.Variation); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to unmarshal variation: %w", err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	for i := range cart.Lines {
		line := &cart.Lines[i]
		p, err := s.Product(ctx, line.ProductID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		line.Product = p
		cart.Subtotal += p.Price * float64(line.Quantity)
	}

	return cart, nil
}

func (s *SQLiteStore) ClearCart(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
