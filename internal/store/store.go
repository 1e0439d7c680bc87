package store

import (
	"context"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/config"
)

// Store defines the storefront persistence the tracker and host read from
type Store interface {
	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	LoadTrackingConfig(ctx context.Context) (config.TrackingConfig, error)
	SaveTrackingConfig(ctx context.Context, cfg config.TrackingConfig) error
	EnsureDefaults(ctx context.Context) (bool, error)

	// Catalog
	commerce.Catalog
	UpsertProduct(ctx context.Context, p *commerce.Product) error
	ListProducts(ctx context.Context) ([]*commerce.Product, error)
	Variations(ctx context.Context, parentID int64) ([]*commerce.Product, error)

	// Cart
	commerce.Carts
	AddToCart(ctx context.Context, sessionID string, productID int64, quantity int, variation []commerce.Attribute) error
	ClearCart(ctx context.Context, sessionID string) error

	// Orders
	commerce.Orders
	CreateOrder(ctx context.Context, sessionID string, order *commerce.Order) (*commerce.Order, error)
	ListOrders(ctx context.Context) ([]OrderSummary, error)
	CountOrders(ctx context.Context) (int, error)

	// Tracked flag
	IsTracked(ctx context.Context, orderID int64) (bool, error)
	TryMarkTracked(ctx context.Context, orderID int64) (bool, error)

	// Lifecycle
	Close() error
}
