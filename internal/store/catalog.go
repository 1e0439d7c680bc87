package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/webextended/ga4-tracking/internal/commerce"
)

// UpsertProduct inserts or replaces a product with its categories and
// attributes.
func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *commerce.Product) error {
	if p.ID <= 0 {
		return fmt.Errorf("invalid product id %d", p.ID)
	}
	if p.Type == "" {
		p.Type = commerce.ProductSimple
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, parent_id, sku, name, type, price) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET parent_id = excluded.parent_id, sku = excluded.sku,
		   name = excluded.name, type = excluded.type, price = excluded.price`,
		p.ID, p.ParentID, p.SKU, p.Name, string(p.Type), p.Price,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_categories WHERE product_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	for i, name := range p.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_categories (product_id, position, name) VALUES (?, ?, ?)`,
			p.ID, i, name,
		); err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_attributes WHERE product_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear attributes: %w", err)
	}
	for i, a := range p.Attributes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_attributes (product_id, position, name, value) VALUES (?, ?, ?, ?)`,
			p.ID, i, a.Name, a.Value,
		); err != nil {
			return fmt.Errorf("failed to insert attribute: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Product(ctx context.Context, id int64) (*commerce.Product, error) {
	var p commerce.Product
	var typ string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, sku, name, type, price FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.ParentID, &p.SKU, &p.Name, &typ, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.Type = commerce.ProductType(typ)

	if err := s.loadProductDetails(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns the top-level products, variations excluded.
func (s *SQLiteStore) ListProducts(ctx context.Context) ([]*commerce.Product, error) {
	return s.queryProducts(ctx,
		`SELECT id, parent_id, sku, name, type, price FROM products WHERE type != ? ORDER BY id`,
		string(commerce.ProductVariation),
	)
}

func (s *SQLiteStore) Variations(ctx context.Context, parentID int64) ([]*commerce.Product, error) {
	return s.queryProducts(ctx,
		`SELECT id, parent_id, sku, name, type, price FROM products WHERE parent_id = ? AND type = ? ORDER BY id`,
		parentID, string(commerce.ProductVariation),
	)
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]*commerce.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*commerce.Product
	for rows.Next() {
		var p commerce.Product
		var typ string
		if err := rows.Scan(&p.ID, &p.ParentID, &p.SKU, &p.Name, &typ, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Type = commerce.ProductType(typ)
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	for _, p := range products {
		if err := s.loadProductDetails(ctx, p); err != nil {
			return nil, err
		}
	}
	return products, nil
}

func (s *SQLiteStore) loadProductDetails(ctx context.Context, p *commerce.Product) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM product_categories WHERE product_id = ? ORDER BY position`, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get categories: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan category: %w", err)
		}
		p.Categories = append(p.Categories, name)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT name, value FROM product_attributes WHERE product_id = ? ORDER BY position`, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a commerce.Attribute
		if err := rows.Scan(&a.Name, &a.Value); err != nil {
			return fmt.Errorf("failed to scan attribute: %w", err)
		}
		p.Attributes = append(p.Attributes, a)
	}
	return rows.Err()
}
