package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/config"
	"github.com/webextended/ga4-tracking/internal/currency"
)

const testSnippet = "<!-- ga4 base snippet -->"

type trackerFixture struct {
	tracker  *Tracker
	shop     *fakeShop
	settings *fakeSettings
	guard    *MemoryGuard
	nonces   *Nonces
	reader   *sdkmetric.ManualReader
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()

	cfg := config.DefaultTracking()
	cfg.Snippet = testSnippet

	f := &trackerFixture{
		shop:     newFakeShop(),
		settings: &fakeSettings{cfg: cfg},
		guard:    NewMemoryGuard(),
		reader:   sdkmetric.NewManualReader(),
	}

	var err error
	f.nonces, err = NewNonces("test-secret", time.Hour)
	require.NoError(t, err)

	f.tracker, err = New(Deps{
		Settings:         f.settings,
		Catalog:          f.shop,
		Carts:            f.shop,
		Orders:           f.shop,
		Currency:         currency.NewResolver("USD", []string{"EUR"}),
		Guard:            f.guard,
		Nonces:           f.nonces,
		Endpoint:         "/wp-admin/admin-ajax.php",
		Logger:           discardLogger(),
		MeterProvider:    sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader)),
		ValidatePayloads: true,
	})
	require.NoError(t, err)
	return f
}

func (f *trackerFixture) register(t *testing.T, ctx context.Context, req Request) *fakeHost {
	t.Helper()
	host := newFakeHost()
	require.NoError(t, f.tracker.Register(ctx, req, host, host, host))
	return host
}

func (f *trackerFixture) counter(t *testing.T, name string, attrs map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
		points:
			for _, dp := range sum.DataPoints {
				for k, v := range attrs {
					got, ok := dp.Attributes.Value(attribute.Key(k))
					if !ok || got.AsString() != v {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func decodePushes(t *testing.T, html string) []Event {
	t.Helper()
	var events []Event
	for _, raw := range pushes(html) {
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(raw), &ev))
		events = append(events, ev)
	}
	return events
}

var productPage = Request{
	Page: Page{IsProduct: true, ProductID: 10},
	Caps: Capabilities{Ecommerce: true},
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestRegister_LoadsSettingsEveryRequest(t *testing.T) {
	f := newTrackerFixture(t)
	f.register(t, context.Background(), productPage)
	f.register(t, context.Background(), productPage)
	assert.Equal(t, 2, f.settings.loads)
}

func TestRegister_ProductPage(t *testing.T) {
	f := newTrackerFixture(t)
	host := f.register(t, context.Background(), productPage)

	assert.Equal(t, testSnippet+"\n", host.render(t, PointHead))

	footer := host.render(t, PointFooter)
	events := decodePushes(t, footer)
	require.Len(t, events, 1)
	assert.Equal(t, EventViewItem, events[0].Name)
	assert.Equal(t, "USD", events[0].Ecommerce.Currency)
	assert.Equal(t, 19.99, events[0].Ecommerce.Value)
	assert.Equal(t, ItemRecord{ItemID: "TSHIRT", ItemName: "T-Shirt", Category: "Clothing", Price: 19.99, Quantity: 1}, events[0].Ecommerce.Items[0])

	assert.Contains(t, footer, AjaxAction)
	assert.Equal(t, int64(1), f.counter(t, "ga4.events.emitted", map[string]string{"event": "view_item"}))
}

func TestRegister_Placement(t *testing.T) {
	f := newTrackerFixture(t)
	f.settings.cfg.Placement = config.PlacementAfterBody

	host := f.register(t, context.Background(), Request{Caps: Capabilities{Ecommerce: true}})
	assert.Empty(t, host.render(t, PointHead))
	assert.Equal(t, testSnippet+"\n", host.render(t, PointBodyOpen))
}

func TestRegister_EmptySnippetSuppressesOutput(t *testing.T) {
	f := newTrackerFixture(t)
	f.settings.cfg.Snippet = "   "

	host := f.register(t, context.Background(), productPage)
	assert.Empty(t, host.points)
	assert.Empty(t, host.orders)
	assert.Contains(t, host.actions, AjaxAction)
}

func TestRegister_EcommerceInactive(t *testing.T) {
	f := newTrackerFixture(t)
	req := productPage
	req.Caps.Ecommerce = false

	host := f.register(t, context.Background(), req)
	assert.Equal(t, testSnippet+"\n", host.render(t, PointHead))
	assert.Empty(t, host.render(t, PointFooter))
	assert.Empty(t, host.orders)
}

func TestRegister_ViewItemDisabled(t *testing.T) {
	f := newTrackerFixture(t)
	f.settings.cfg.ViewItem = false

	host := f.register(t, context.Background(), productPage)
	assert.Empty(t, decodePushes(t, host.render(t, PointFooter)))
}

func TestRegister_AddToCartDisabled(t *testing.T) {
	f := newTrackerFixture(t)
	f.settings.cfg.AddToCart = false

	host := f.register(t, context.Background(), productPage)
	assert.NotContains(t, host.render(t, PointFooter), AjaxAction)
	assert.NotContains(t, host.actions, AjaxAction)
}

func TestRegister_UnknownProduct(t *testing.T) {
	f := newTrackerFixture(t)
	req := productPage
	req.Page.ProductID = 404

	host := f.register(t, context.Background(), req)
	assert.Empty(t, decodePushes(t, host.render(t, PointFooter)))
	assert.Equal(t, int64(1), f.counter(t, "ga4.events.skipped", map[string]string{"reason": reasonNoProduct}))
}

func TestRegister_ClientCurrency(t *testing.T) {
	f := newTrackerFixture(t)

	ctx := currency.WithClientCurrency(context.Background(), "eur")
	host := f.register(t, ctx, productPage)
	var b strings.Builder
	for _, e := range host.points[PointFooter] {
		require.NoError(t, e.fn(ctx, &b))
	}
	events := decodePushes(t, b.String())
	require.Len(t, events, 1)
	assert.Equal(t, "EUR", events[0].Ecommerce.Currency)
}

func TestBeginCheckout(t *testing.T) {
	f := newTrackerFixture(t)
	f.shop.carts["s1"] = &commerce.Cart{
		SessionID: "s1",
		Subtotal:  104.97,
		Lines: []commerce.CartLine{
			{ProductID: 10, Product: f.shop.products[10], Quantity: 3},
			{ProductID: 21, Product: f.shop.products[21], Quantity: 1, Variation: []commerce.Attribute{{Name: "color", Value: "Blue"}}},
			{ProductID: 99, Quantity: 1},
		},
	}

	host := f.register(t, context.Background(), Request{
		Page:      Page{IsCheckout: true},
		Caps:      Capabilities{Ecommerce: true},
		SessionID: "s1",
	})

	events := decodePushes(t, host.render(t, PointFooter))
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventBeginCheckout, ev.Name)
	assert.Equal(t, 104.97, ev.Ecommerce.Value)
	require.Len(t, ev.Ecommerce.Items, 2)
	assert.Equal(t, "Blue", ev.Ecommerce.Items[1].Variant)
}

func TestBeginCheckout_EmptyCart(t *testing.T) {
	f := newTrackerFixture(t)

	host := f.register(t, context.Background(), Request{
		Page:      Page{IsCheckout: true},
		Caps:      Capabilities{Ecommerce: true},
		SessionID: "nobody",
	})
	assert.Empty(t, decodePushes(t, host.render(t, PointFooter)))
}

func TestBeginCheckout_NoResolvableLines(t *testing.T) {
	f := newTrackerFixture(t)
	f.shop.carts["s1"] = &commerce.Cart{
		SessionID: "s1",
		Subtotal:  30,
		Lines:     []commerce.CartLine{{ProductID: 99, Quantity: 2}},
	}

	host := f.register(t, context.Background(), Request{
		Page:      Page{IsCheckout: true},
		Caps:      Capabilities{Ecommerce: true},
		SessionID: "s1",
	})
	assert.Empty(t, decodePushes(t, host.render(t, PointFooter)))
	assert.Equal(t, int64(1), f.counter(t, "ga4.events.skipped", map[string]string{"event": "begin_checkout", "reason": reasonEmptyCart}))
	assert.Zero(t, f.counter(t, "ga4.events.emitted", map[string]string{"event": "begin_checkout"}))
}

func TestBeginCheckout_NotOnOrderReceived(t *testing.T) {
	f := newTrackerFixture(t)
	f.shop.carts["s1"] = &commerce.Cart{Subtotal: 10, Lines: []commerce.CartLine{{ProductID: 10, Product: f.shop.products[10], Quantity: 1}}}

	host := f.register(t, context.Background(), Request{
		Page:      Page{IsCheckout: true, IsOrderReceived: true, OrderID: "1"},
		Caps:      Capabilities{Ecommerce: true},
		SessionID: "s1",
	})
	assert.Empty(t, decodePushes(t, host.render(t, PointFooter)))
}

func addOrder(f *trackerFixture) {
	f.shop.orders[5] = &commerce.Order{
		ID: 5, Number: "1005", Currency: "EUR",
		Subtotal: 59.97, Tax: 12, Shipping: 4.99, Total: 76.96,
		Lines: []commerce.OrderLine{
			{ID: 1, ProductID: 10, Name: "T-Shirt", Quantity: 3, Total: 59.97},
			{ID: 2, ProductID: 999, Name: "Discontinued", Quantity: 1, Total: 0},
		},
	}
}

func orderReceived(id string) Request {
	return Request{
		Page: Page{IsCheckout: true, IsOrderReceived: true, OrderID: id},
		Caps: Capabilities{Ecommerce: true},
	}
}

func TestPurchase_EmittedOnce(t *testing.T) {
	f := newTrackerFixture(t)
	addOrder(f)
	req := orderReceived("5")

	host := f.register(t, context.Background(), req)
	require.Len(t, host.orders, 1)
	first := decodePushes(t, host.completeOrder(t, context.Background(), "5"))
	require.Len(t, first, 1)

	ev := first[0]
	assert.Equal(t, EventPurchase, ev.Name)
	assert.Equal(t, "1005", ev.Ecommerce.TransactionID)
	assert.Equal(t, "EUR", ev.Ecommerce.Currency)
	assert.Equal(t, 59.97, ev.Ecommerce.Value)
	assert.Equal(t, 12.0, *ev.Ecommerce.Tax)
	assert.Equal(t, 4.99, *ev.Ecommerce.Shipping)
	require.Len(t, ev.Ecommerce.Items, 1)
	assert.Equal(t, 19.99, ev.Ecommerce.Items[0].Price)

	tracked, err := f.guard.IsTracked(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, tracked)

	host = f.register(t, context.Background(), req)
	assert.Empty(t, host.completeOrder(t, context.Background(), "5"))
	assert.Equal(t, int64(1), f.counter(t, "ga4.events.skipped", map[string]string{"reason": reasonTracked}))
}

func TestPurchase_MissingOrderNotMarked(t *testing.T) {
	f := newTrackerFixture(t)
	host := f.register(t, context.Background(), orderReceived("77"))

	assert.Empty(t, host.completeOrder(t, context.Background(), "77"))
	assert.Empty(t, host.completeOrder(t, context.Background(), ""))
	assert.Empty(t, host.completeOrder(t, context.Background(), "abc"))

	tracked, err := f.guard.IsTracked(context.Background(), 77)
	require.NoError(t, err)
	assert.False(t, tracked)
}

func TestPurchase_SkipsLookupWhenTracked(t *testing.T) {
	f := newTrackerFixture(t)
	addOrder(f)
	_, err := f.guard.TryMarkTracked(context.Background(), 5)
	require.NoError(t, err)

	host := f.register(t, context.Background(), orderReceived("5"))
	assert.Empty(t, host.completeOrder(t, context.Background(), "5"))
	assert.Zero(t, f.shop.orderCalls)
}

func TestPurchase_FallbackValue(t *testing.T) {
	f := newTrackerFixture(t)
	f.shop.orders[6] = &commerce.Order{ID: 6, Number: "1006", Subtotal: 0, Tax: 2, Shipping: 3, Total: 25}

	host := f.register(t, context.Background(), orderReceived("6"))
	events := decodePushes(t, host.completeOrder(t, context.Background(), "6"))
	require.Len(t, events, 1)
	assert.Equal(t, 20.0, events[0].Ecommerce.Value)
	assert.Equal(t, "USD", events[0].Ecommerce.Currency)
	assert.Empty(t, events[0].Ecommerce.Items)
}

func TestPurchase_DisabledNotRegistered(t *testing.T) {
	f := newTrackerFixture(t)
	f.settings.cfg.Purchase = false

	host := f.register(t, context.Background(), orderReceived("5"))
	assert.Empty(t, host.orders)
}

func TestRegister_OnlyEligibleEvents(t *testing.T) {
	f := newTrackerFixture(t)
	addOrder(f)

	host := f.register(t, context.Background(), productPage)
	assert.Empty(t, host.orders, "purchase hook needs an order page")
	footer := host.render(t, PointFooter)
	assert.Len(t, decodePushes(t, footer), 1)

	f.shop.carts["s1"] = &commerce.Cart{Subtotal: 10, Lines: []commerce.CartLine{{ProductID: 10, Product: f.shop.products[10], Quantity: 1}}}
	host = f.register(t, context.Background(), Request{
		Page:      Page{IsCheckout: true, ProductID: 10},
		Caps:      Capabilities{Ecommerce: true},
		SessionID: "s1",
	})
	assert.Empty(t, host.orders)
	events := decodePushes(t, host.render(t, PointFooter))
	require.Len(t, events, 1)
	assert.Equal(t, EventBeginCheckout, events[0].Name)

	host = f.register(t, context.Background(), orderReceived("5"))
	require.Len(t, host.orders, 1)
	assert.Empty(t, decodePushes(t, host.render(t, PointFooter)))
	assert.Contains(t, host.render(t, PointFooter), AjaxAction)
}

func productForm(f *trackerFixture, t *testing.T, id, qty string) url.Values {
	t.Helper()
	nonce, err := f.nonces.Create(ProductDataAction)
	require.NoError(t, err)
	return url.Values{"action": {AjaxAction}, "product_id": {id}, "quantity": {qty}, "security": {nonce}}
}

func TestProductData(t *testing.T) {
	f := newTrackerFixture(t)
	host := f.register(t, context.Background(), productPage)

	got, err := host.call(context.Background(), productForm(f, t, "10", "3"))
	require.NoError(t, err)

	data, ok := got.(AddToCartData)
	require.True(t, ok)
	assert.Equal(t, "USD", data.Currency)
	assert.Equal(t, 59.97, data.Value)
	assert.Equal(t, 3, data.Item.Quantity)
	assert.Equal(t, "TSHIRT", data.Item.ItemID)
}

func TestProductData_QuantityDefaultsToOne(t *testing.T) {
	f := newTrackerFixture(t)
	host := f.register(t, context.Background(), productPage)

	for _, qty := range []string{"", "0", "-2", "abc"} {
		got, err := host.call(context.Background(), productForm(f, t, "10", qty))
		require.NoError(t, err, qty)
		assert.Equal(t, 1, got.(AddToCartData).Item.Quantity, qty)
	}
}

func TestProductData_Errors(t *testing.T) {
	tests := []struct {
		name       string
		form       func(f *trackerFixture, t *testing.T) url.Values
		inactive   bool
		wantStatus int
		wantMsg    string
		wantLookup bool
	}{
		{
			name:       "missing nonce",
			form:       func(*trackerFixture, *testing.T) url.Values { return url.Values{"product_id": {"10"}} },
			wantStatus: http.StatusForbidden,
			wantMsg:    "Security check failed",
		},
		{
			name: "bad nonce",
			form: func(*trackerFixture, *testing.T) url.Values {
				return url.Values{"product_id": {"10"}, "security": {"forged"}}
			},
			wantStatus: http.StatusForbidden,
			wantMsg:    "Security check failed",
		},
		{
			name:       "platform inactive",
			form:       func(f *trackerFixture, t *testing.T) url.Values { return productForm(f, t, "10", "1") },
			inactive:   true,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Ecommerce platform not active",
		},
		{
			name:       "invalid id",
			form:       func(f *trackerFixture, t *testing.T) url.Values { return productForm(f, t, "0", "1") },
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid product ID",
		},
		{
			name:       "not found",
			form:       func(f *trackerFixture, t *testing.T) url.Values { return productForm(f, t, "404", "1") },
			wantStatus: http.StatusNotFound,
			wantMsg:    "Product not found",
			wantLookup: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTrackerFixture(t)
			req := productPage
			req.Caps.Ecommerce = !tt.inactive
			host := f.register(t, context.Background(), req)

			_, err := host.call(context.Background(), tt.form(f, t))
			var ae *ActionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantStatus, ae.Status)
			assert.Equal(t, tt.wantMsg, ae.Message)
			assert.Equal(t, tt.wantLookup, f.shop.productCalls > 0)
		})
	}
}

func TestPreview(t *testing.T) {
	f := newTrackerFixture(t)
	addOrder(f)

	ev, err := f.tracker.PreviewViewItem(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, "Blue, Large", ev.Ecommerce.Items[0].Variant)

	ev, err = f.tracker.PreviewPurchase(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "1005", ev.Ecommerce.TransactionID)

	tracked, err := f.guard.IsTracked(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, tracked)

	_, err = f.tracker.PreviewPurchase(context.Background(), 404)
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}
