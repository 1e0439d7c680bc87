package tracking

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/config"
)

type fakeShop struct {
	products     map[int64]*commerce.Product
	carts        map[string]*commerce.Cart
	orders       map[int64]*commerce.Order
	productCalls int
	orderCalls   int
	err          error
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		products: map[int64]*commerce.Product{
			10: {ID: 10, SKU: "TSHIRT", Name: "T-Shirt", Type: commerce.ProductSimple, Price: 19.99, Categories: []string{"Clothing"}},
			20: {ID: 20, Name: "Hoodie", Type: commerce.ProductVariable, Price: 45, Categories: []string{"Hoodies", "Clothing"}},
			21: {ID: 21, ParentID: 20, SKU: "HOOD-BLU-L", Name: "Hoodie - Blue, Large", Type: commerce.ProductVariation, Price: 45,
				Attributes: []commerce.Attribute{{Name: "color", Value: "Blue"}, {Name: "size", Value: "Large"}}},
			30: {ID: 30, Name: "Sticker", Type: commerce.ProductSimple, Price: 2.5},
		},
		carts:  map[string]*commerce.Cart{},
		orders: map[int64]*commerce.Order{},
	}
}

func (f *fakeShop) Product(_ context.Context, id int64) (*commerce.Product, error) {
	f.productCalls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return p, nil
}

func (f *fakeShop) Cart(_ context.Context, sessionID string) (*commerce.Cart, error) {
	c, ok := f.carts[sessionID]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return c, nil
}

func (f *fakeShop) Order(_ context.Context, id int64) (*commerce.Order, error) {
	f.orderCalls++
	o, ok := f.orders[id]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return o, nil
}

type fakeSettings struct {
	cfg   config.TrackingConfig
	loads int
}

func (s *fakeSettings) LoadTrackingConfig(context.Context) (config.TrackingConfig, error) {
	s.loads++
	return s.cfg, nil
}

type hostEntry struct {
	priority int
	fn       InjectFunc
}

// fakeHost records registrations the way a storefront would for one request.
type fakeHost struct {
	points  map[InjectionPoint][]hostEntry
	orders  []OrderCompletedFunc
	actions map[string]ActionFunc
}

func newFakeHost() *fakeHost {
	return &fakeHost{points: map[InjectionPoint][]hostEntry{}, actions: map[string]ActionFunc{}}
}

func (h *fakeHost) Add(point InjectionPoint, priority int, fn InjectFunc) {
	h.points[point] = append(h.points[point], hostEntry{priority: priority, fn: fn})
}

func (h *fakeHost) OnOrderCompleted(fn OrderCompletedFunc) { h.orders = append(h.orders, fn) }

func (h *fakeHost) HandleAction(name string, fn ActionFunc) { h.actions[name] = fn }

func (h *fakeHost) render(t *testing.T, point InjectionPoint) string {
	t.Helper()
	entries := h.points[point]
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].priority < entries[j].priority })
	var b strings.Builder
	for _, e := range entries {
		require.NoError(t, e.fn(context.Background(), &b))
	}
	return b.String()
}

func (h *fakeHost) completeOrder(t *testing.T, ctx context.Context, orderID string) string {
	t.Helper()
	var b strings.Builder
	for _, fn := range h.orders {
		require.NoError(t, fn(ctx, &b, orderID))
	}
	return b.String()
}

func (h *fakeHost) call(ctx context.Context, form url.Values) (any, error) {
	fn, ok := h.actions[AjaxAction]
	if !ok {
		return nil, nil
	}
	return fn(ctx, form)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pushes returns the JSON objects passed to dataLayer.push in html.
func pushes(html string) []string {
	const open = "\nwindow.dataLayer.push("
	var out []string
	for {
		i := strings.Index(html, open)
		if i < 0 {
			return out
		}
		html = html[i+len(open):]
		j := strings.Index(html, ");\n")
		if j < 0 {
			return out
		}
		out = append(out, strings.TrimSpace(html[:j]))
		html = html[j:]
	}
}
