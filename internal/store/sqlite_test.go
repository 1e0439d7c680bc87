package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/config"
	"github.com/webextended/ga4-tracking/internal/store"
)

func setupTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func seedCatalog(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	products := []*commerce.Product{
		{ID: 10, SKU: "TSHIRT", Name: "T-Shirt", Price: 19.99, Categories: []string{"Clothing", "Tops"}},
		{ID: 20, Name: "Hoodie", Type: commerce.ProductVariable, Price: 45, Categories: []string{"Hoodies"}},
		{ID: 21, ParentID: 20, SKU: "HOOD-BLU-L", Name: "Hoodie - Blue, Large", Type: commerce.ProductVariation, Price: 45,
			Attributes: []commerce.Attribute{{Name: "color", Value: "Blue"}, {Name: "size", Value: "Large"}}},
	}
	for _, p := range products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			t.Fatalf("failed to upsert product %d: %v", p.ID, err)
		}
	}
}

func TestOpen(t *testing.T) {
	s := setupTestDB(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil db")
	}
}

func TestSettings(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "nonexistent"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSetting(ctx, "framework", "react"); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}
	if err := s.SetSetting(ctx, "framework", "vue"); err != nil {
		t.Fatalf("failed to update setting: %v", err)
	}

	value, err := s.GetSetting(ctx, "framework")
	if err != nil {
		t.Fatalf("failed to get setting: %v", err)
	}
	if value != "vue" {
		t.Errorf("got %q, want vue", value)
	}
}

func TestLoadTrackingConfig_Defaults(t *testing.T) {
	s := setupTestDB(t)

	cfg, err := s.LoadTrackingConfig(context.Background())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg != config.DefaultTracking() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestSaveTrackingConfig(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	cfg := config.DefaultTracking()
	cfg.Snippet = "<script>gtag()</script>"
	cfg.Placement = config.PlacementFooter
	cfg.Priority = 20
	cfg.BeginCheckout = false

	if err := s.SaveTrackingConfig(ctx, cfg); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	got, err := s.LoadTrackingConfig(ctx)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if got != cfg {
		t.Errorf("got %+v, want %+v", got, cfg)
	}

	raw, err := s.GetSetting(ctx, config.OptionName)
	if err != nil {
		t.Fatalf("failed to read option: %v", err)
	}
	if want := `"code_placement":"footer"`; !strings.Contains(raw, want) {
		t.Errorf("stored record %s missing %s", raw, want)
	}
}

func TestSaveTrackingConfig_Invalid(t *testing.T) {
	s := setupTestDB(t)

	cfg := config.DefaultTracking()
	cfg.Placement = "sidebar"
	if err := s.SaveTrackingConfig(context.Background(), cfg); err == nil {
		t.Error("expected error for invalid placement")
	}
}

func TestLoadTrackingConfig_PartialRecord(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if err := s.SetSetting(ctx, config.OptionName, `{"ga4_code":"x","purchase_enabled":false}`); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}

	cfg, err := s.LoadTrackingConfig(ctx)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Purchase {
		t.Error("expected purchase disabled")
	}
	if !cfg.ViewItem || cfg.Placement != config.PlacementHeader || cfg.Priority != 1 {
		t.Errorf("missing keys should read as defaults, got %+v", cfg)
	}
}

func TestEnsureDefaults(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	created, err := s.EnsureDefaults(ctx)
	if err != nil || !created {
		t.Fatalf("expected defaults created, got %v, %v", created, err)
	}

	cfg := config.DefaultTracking()
	cfg.Snippet = "kept"
	if err := s.SaveTrackingConfig(ctx, cfg); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	created, err = s.EnsureDefaults(ctx)
	if err != nil || created {
		t.Fatalf("expected existing record kept, got %v, %v", created, err)
	}

	got, _ := s.LoadTrackingConfig(ctx)
	if got.Snippet != "kept" {
		t.Errorf("activation overwrote settings: %+v", got)
	}
}

func TestProduct(t *testing.T) {
	s := setupTestDB(t)
	seedCatalog(t, s)
	ctx := context.Background()

	p, err := s.Product(ctx, 21)
	if err != nil {
		t.Fatalf("failed to get product: %v", err)
	}
	if !p.IsVariation() || p.ParentID != 20 {
		t.Errorf("got %+v, want variation of 20", p)
	}
	if len(p.Attributes) != 2 || p.Attributes[0].Value != "Blue" {
		t.Errorf("got attributes %+v", p.Attributes)
	}

	p, err = s.Product(ctx, 10)
	if err != nil {
		t.Fatalf("failed to get product: %v", err)
	}
	if len(p.Categories) != 2 || p.Categories[0] != "Clothing" {
		t.Errorf("got categories %+v", p.Categories)
	}

	if _, err := s.Product(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Product(ctx, 999); !errors.Is(err, commerce.ErrNotFound) {
		t.Errorf("expected commerce.ErrNotFound, got %v", err)
	}
}

func TestUpsertProduct_Replaces(t *testing.T) {
	s := setupTestDB(t)
	seedCatalog(t, s)
	ctx := context.Background()

	err := s.UpsertProduct(ctx, &commerce.Product{ID: 10, Name: "T-Shirt v2", Price: 21, Categories: []string{"Sale"}})
	if err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	p, _ := s.Product(ctx, 10)
	if p.Name != "T-Shirt v2" || p.SKU != "" || len(p.Categories) != 1 || p.Categories[0] != "Sale" {
		t.Errorf("got %+v", p)
	}
}

func TestListProductsAndVariations(t *testing.T) {
	s := setupTestDB(t)
	seedCatalog(t, s)
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("failed to list products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}

	variations, err := s.Variations(ctx, 20)
	if err != nil {
		t.Fatalf("failed to list variations: %v", err)
	}
	if len(variations) != 1 || variations[0].ID != 21 {
		t.Errorf("got %+v", variations)
	}
}

func TestCart(t *testing.T) {
	s := setupTestDB(t)
	seedCatalog(t, s)
	ctx := context.Background()

	blue := []commerce.Attribute{{Name: "color", Value: "Blue"}}
	steps := []struct {
		id  int64
		qty int
		v   []commerce.Attribute
	}{
		{10, 2, nil},
		{10, 1, nil},
		{21, 1, blue},
		{404, 1, nil},
	}
	for _, st := range steps {
		if err := s.AddToCart(ctx, "sess", st.id, st.qty, st.v); err != nil {
			t.Fatalf("failed to add to cart: %v", err)
		}
	}

	cart, err := s.Cart(ctx, "sess")
	if err != nil {
		t.Fatalf("failed to get cart: %v", err)
	}
	if len(cart.Lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 3 {
		t.Errorf("got quantity %d, want merged 3", cart.Lines[0].Quantity)
	}
	if cart.Lines[1].Variation[0].Value != "Blue" {
		t.Errorf("got variation %+v", cart.Lines[1].Variation)
	}
	if cart.Lines[2].Product != nil {
		t.Error("expected unresolved product for deleted line")
	}
	if want := 19.99*3 + 45; cart.Subtotal < want-0.001 || cart.Subtotal > want+0.001 {
		t.Errorf("got subtotal %v, want %v", cart.Subtotal, want)
	}

	empty, err := s.Cart(ctx, "other")
	if err != nil {
		t.Fatalf("failed to get empty cart: %v", err)
	}
	if !empty.IsEmpty() {
		t.Error("expected empty cart")
	}

	if err := s.ClearCart(ctx, "sess"); err != nil {
		t.Fatalf("failed to clear cart: %v", err)
	}
	cart, _ = s.Cart(ctx, "sess")
	if !cart.IsEmpty() {
		t.Error("expected cart cleared")
	}
}

func TestCreateOrder(t *testing.T) {
	s := setupTestDB(t)
	seedCatalog(t, s)
	ctx := context.Background()

	if err := s.AddToCart(ctx, "sess", 10, 1, nil); err != nil {
		t.Fatalf("failed to add to cart: %v", err)
	}

	order, err := s.CreateOrder(ctx, "sess", &commerce.Order{
		Currency: "USD", Subtotal: 59.97, Tax: 6, Shipping: 5, Total: 70.97,
		Lines: []commerce.OrderLine{{ProductID: 10, Name: "T-Shirt", Quantity: 3, Total: 59.97}},
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if order.ID == 0 || order.Number != "1001" {
		t.Errorf("got id %d number %q", order.ID, order.Number)
	}

	got, err := s.Order(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to get order: %v", err)
	}
	if got.Number != order.Number || got.Subtotal != 59.97 || len(got.Lines) != 1 || got.Lines[0].Quantity != 3 {
		t.Errorf("got %+v", got)
	}
	if !strings.HasPrefix(order.Key, "order_") || got.Key != order.Key {
		t.Errorf("expected stored order key, got %q and %q", order.Key, got.Key)
	}

	other, err := s.CreateOrder(ctx, "", &commerce.Order{Currency: "USD", Subtotal: 1, Total: 1})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if other.Key == order.Key {
		t.Error("expected distinct order keys")
	}

	cart, _ := s.Cart(ctx, "sess")
	if !cart.IsEmpty() {
		t.Error("expected cart cleared by order")
	}

	if _, err := s.Order(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountOrders(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	n, err := s.CountOrders(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 orders, got %d, %v", n, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.CreateOrder(ctx, "", &commerce.Order{Currency: "USD", Subtotal: 1, Total: 1}); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
	}

	n, err = s.CountOrders(ctx)
	if err != nil || n != 3 {
		t.Errorf("expected 3 orders, got %d, %v", n, err)
	}
}

func TestOpen_AddsOrderKeyColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		subtotal REAL NOT NULL,
		tax REAL NOT NULL DEFAULT 0,
		shipping REAL NOT NULL DEFAULT 0,
		total REAL NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`)
	if err != nil {
		t.Fatalf("failed to create old orders table: %v", err)
	}
	db.Close()

	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	order, err := s.CreateOrder(context.Background(), "", &commerce.Order{Currency: "USD", Subtotal: 1, Total: 1})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	got, err := s.Order(context.Background(), order.ID)
	if err != nil || got.Key == "" {
		t.Errorf("expected order key after migration, got %+v, %v", got, err)
	}
}

func TestTrackedFlag(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, "", &commerce.Order{Currency: "USD", Subtotal: 1, Total: 1})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	tracked, err := s.IsTracked(ctx, order.ID)
	if err != nil || tracked {
		t.Fatalf("expected untracked, got %v, %v", tracked, err)
	}

	ok, err := s.TryMarkTracked(ctx, order.ID)
	if err != nil || !ok {
		t.Fatalf("expected first mark to win, got %v, %v", ok, err)
	}
	ok, err = s.TryMarkTracked(ctx, order.ID)
	if err != nil || ok {
		t.Fatalf("expected second mark to lose, got %v, %v", ok, err)
	}

	tracked, _ = s.IsTracked(ctx, order.ID)
	if !tracked {
		t.Error("expected tracked")
	}

	orders, err := s.ListOrders(ctx)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(orders) != 1 || !orders[0].Tracked {
		t.Errorf("got %+v", orders)
	}
}

func TestTryMarkTracked_Concurrent(t *testing.T) {
	s := setupTestDB(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.TryMarkTracked(context.Background(), 5); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("got %d winners, want 1", wins.Load())
	}
}
