package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/config"
	"github.com/webextended/ga4-tracking/internal/currency"
)

// SettingsSource loads the tracking configuration. It is called once per
// request and must not cache across requests.
type SettingsSource interface {
	LoadTrackingConfig(ctx context.Context) (config.TrackingConfig, error)
}

type Deps struct {
	Settings SettingsSource
	Catalog  commerce.Catalog
	Carts    commerce.Carts
	Orders   commerce.Orders
	Currency *currency.Resolver
	Guard    Guard
	Nonces   *Nonces

	// Endpoint is the URL the add_to_cart script posts to.
	Endpoint string

	Logger           *slog.Logger
	MeterProvider    metric.MeterProvider
	ValidatePayloads bool
}

// Tracker registers tracking output into the host's extension points.
type Tracker struct {
	settings SettingsSource
	catalog  commerce.Catalog
	carts    commerce.Carts
	orders   commerce.Orders
	currency *currency.Resolver
	guard    Guard
	nonces   *Nonces
	endpoint string
	items    *ItemBuilder
	log      *slog.Logger
	metrics  *metrics
	validate bool
}

func New(d Deps) (*Tracker, error) {
	if d.Settings == nil || d.Catalog == nil || d.Carts == nil || d.Orders == nil {
		return nil, errors.New("tracker requires settings, catalog, carts and orders")
	}
	if d.Guard == nil || d.Nonces == nil || d.Currency == nil {
		return nil, errors.New("tracker requires a guard, nonces and a currency resolver")
	}

	m, err := newMetrics(d.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Tracker{
		settings: d.Settings,
		catalog:  d.Catalog,
		carts:    d.Carts,
		orders:   d.Orders,
		currency: d.Currency,
		guard:    d.Guard,
		nonces:   d.Nonces,
		endpoint: d.Endpoint,
		items:    NewItemBuilder(d.Catalog),
		log:      log,
		metrics:  m,
		validate: d.ValidatePayloads,
	}, nil
}

// Register loads the tracking configuration and adds the output enabled for
// req to the host extension points. With an empty snippet nothing is added
// to the page; the async action stays available.
func (t *Tracker) Register(ctx context.Context, req Request, page PageRenderer, orders OrderLifecycleNotifier, async AsyncRequestRouter) error {
	cfg, err := t.settings.LoadTrackingConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tracking config: %w", err)
	}
	cfg = cfg.Normalize()
	gate := NewGate(cfg, req.Caps)

	if cfg.AddToCart {
		async.HandleAction(AjaxAction, t.productDataAction(req.Caps))
	}

	if !cfg.HasSnippet() {
		return nil
	}

	snippet := cfg.Snippet
	page.Add(PointFor(cfg.Placement), cfg.Priority, func(_ context.Context, w io.Writer) error {
		return WriteSnippet(w, snippet)
	})

	if !req.Caps.Ecommerce {
		return nil
	}

	for _, ev := range gate.Eligible(req.Page) {
		switch ev {
		case EventViewItem:
			page.Add(PointFooter, DefaultPriority, func(ctx context.Context, w io.Writer) error {
				return t.emitViewItem(ctx, w, gate, req.Page)
			})
		case EventAddToCart:
			page.Add(PointFooter, DefaultPriority, t.writeAddToCartScript)
		case EventBeginCheckout:
			page.Add(PointFooter, DefaultPriority, func(ctx context.Context, w io.Writer) error {
				return t.emitBeginCheckout(ctx, w, gate, req)
			})
		case EventPurchase:
			orders.OnOrderCompleted(func(ctx context.Context, w io.Writer, orderID string) error {
				return t.emitPurchase(ctx, w, gate, orderID)
			})
		}
	}
	return nil
}

func (t *Tracker) emitViewItem(ctx context.Context, w io.Writer, gate Gate, page Page) error {
	if !page.IsProduct {
		return nil
	}

	p, err := t.catalog.Product(ctx, page.ProductID)
	if errors.Is(err, commerce.ErrNotFound) {
		t.skip(ctx, EventViewItem, reasonNoProduct, "product_id", page.ProductID)
		return nil
	}
	if err != nil {
		t.metrics.recordSkipped(ctx, EventViewItem, reasonLookupError)
		return fmt.Errorf("failed to load product %d: %w", page.ProductID, err)
	}
	if !gate.AllowViewItem(page, p) {
		return nil
	}

	return t.emit(ctx, w, t.viewItemEvent(ctx, p))
}

func (t *Tracker) viewItemEvent(ctx context.Context, p *commerce.Product) Event {
	return ViewItem(t.currency.Current(ctx), t.items.FromProduct(ctx, p, 1))
}

func (t *Tracker) writeAddToCartScript(_ context.Context, w io.Writer) error {
	nonce, err := t.nonces.Create(ProductDataAction)
	if err != nil {
		return err
	}
	return WriteAddToCartScript(w, t.endpoint, nonce)
}

func (t *Tracker) emitBeginCheckout(ctx context.Context, w io.Writer, gate Gate, req Request) error {
	if !req.Page.IsCheckout || req.Page.IsOrderReceived {
		return nil
	}

	cart, err := t.carts.Cart(ctx, req.SessionID)
	if err != nil && !errors.Is(err, commerce.ErrNotFound) {
		t.metrics.recordSkipped(ctx, EventBeginCheckout, reasonLookupError)
		return fmt.Errorf("failed to load cart: %w", err)
	}
	if !gate.AllowBeginCheckout(req.Page, cart) {
		t.skip(ctx, EventBeginCheckout, reasonEmptyCart)
		return nil
	}

	items := make([]ItemRecord, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		item, ok := t.items.FromCartLine(ctx, line)
		if !ok {
			t.log.Debug("ga4: skipping unresolved cart line", "product_id", line.ProductID)
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		t.skip(ctx, EventBeginCheckout, reasonEmptyCart)
		return nil
	}

	return t.emit(ctx, w, BeginCheckout(t.currency.Current(ctx), cart, items))
}

func (t *Tracker) emitPurchase(ctx context.Context, w io.Writer, gate Gate, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil || id <= 0 {
		t.skip(ctx, EventPurchase, reasonNoOrder, "order_id", orderID)
		return nil
	}

	tracked, err := t.guard.IsTracked(ctx, id)
	if err != nil {
		t.metrics.recordSkipped(ctx, EventPurchase, reasonLookupError)
		return err
	}
	if !gate.AllowPurchase(orderID, tracked) {
		t.skip(ctx, EventPurchase, reasonTracked, "order_id", id)
		return nil
	}

	order, err := t.orders.Order(ctx, id)
	if errors.Is(err, commerce.ErrNotFound) {
		t.skip(ctx, EventPurchase, reasonNoOrder, "order_id", id)
		return nil
	}
	if err != nil {
		t.metrics.recordSkipped(ctx, EventPurchase, reasonLookupError)
		return fmt.Errorf("failed to load order %d: %w", id, err)
	}

	marked, err := t.guard.TryMarkTracked(ctx, id)
	if err != nil {
		t.metrics.recordSkipped(ctx, EventPurchase, reasonLookupError)
		return err
	}
	if !marked {
		t.skip(ctx, EventPurchase, reasonTracked, "order_id", id)
		return nil
	}

	ev, err := t.purchaseEvent(ctx, order)
	if err != nil {
		return err
	}
	return t.emit(ctx, w, ev)
}

func (t *Tracker) purchaseEvent(ctx context.Context, order *commerce.Order) (Event, error) {
	items := make([]ItemRecord, 0, len(order.Lines))
	for _, line := range order.Lines {
		item, ok, err := t.items.FromOrderLine(ctx, line)
		if err != nil {
			return Event{}, err
		}
		if !ok {
			t.log.Debug("ga4: skipping order line with deleted product",
				"order_id", order.ID, "product_id", line.ProductID)
			continue
		}
		items = append(items, item)
	}

	if _, fallback := PurchaseValue(order); fallback {
		t.log.Debug("ga4: purchase value computed from total, subtotal not positive",
			"order_id", order.ID, "subtotal", order.Subtotal)
	}

	return Purchase(t.currency.ForOrder(ctx, order), order, items), nil
}

// PreviewViewItem builds the view_item event for a product without emitting it.
func (t *Tracker) PreviewViewItem(ctx context.Context, productID int64) (Event, error) {
	p, err := t.catalog.Product(ctx, productID)
	if err != nil {
		return Event{}, err
	}
	return t.viewItemEvent(ctx, p), nil
}

// PreviewPurchase builds the purchase event for an order without checking or
// setting its tracked flag.
func (t *Tracker) PreviewPurchase(ctx context.Context, orderID int64) (Event, error) {
	order, err := t.orders.Order(ctx, orderID)
	if err != nil {
		return Event{}, err
	}
	return t.purchaseEvent(ctx, order)
}

func (t *Tracker) productDataAction(caps Capabilities) ActionFunc {
	return func(ctx context.Context, form url.Values) (any, error) {
		if err := t.nonces.Verify(form.Get("security"), ProductDataAction); err != nil {
			t.log.Warn("ga4: product data nonce verification failed", "error", err)
			t.metrics.recordAjax(ctx, "invalid_nonce")
			return nil, actionErr(http.StatusForbidden, "Security check failed")
		}
		if !caps.Ecommerce {
			t.metrics.recordAjax(ctx, "inactive")
			return nil, actionErr(http.StatusServiceUnavailable, "Ecommerce platform not active")
		}

		productID, err := strconv.ParseInt(strings.TrimSpace(form.Get("product_id")), 10, 64)
		if err != nil || productID <= 0 {
			t.metrics.recordAjax(ctx, "invalid_product")
			return nil, actionErr(http.StatusBadRequest, "Invalid product ID")
		}
		quantity, err := strconv.Atoi(strings.TrimSpace(form.Get("quantity")))
		if err != nil || quantity < 1 {
			quantity = 1
		}

		p, err := t.catalog.Product(ctx, productID)
		if errors.Is(err, commerce.ErrNotFound) {
			t.log.Debug("ga4: product data requested for unknown product", "product_id", productID)
			t.metrics.recordAjax(ctx, "not_found")
			return nil, actionErr(http.StatusNotFound, "Product not found")
		}
		if err != nil {
			t.metrics.recordAjax(ctx, "error")
			return nil, fmt.Errorf("failed to load product %d: %w", productID, err)
		}

		data := AddToCartValue(t.currency.Current(ctx), t.items.FromProduct(ctx, p, quantity))
		if t.validate {
			if err := ValidateEvent(AddToCart(data.Currency, data.Item)); err != nil {
				t.log.Warn("ga4: add_to_cart payload failed validation", "error", err)
			}
		}
		t.metrics.recordAjax(ctx, "ok")
		t.metrics.recordEmitted(ctx, EventAddToCart)
		return data, nil
	}
}

func (t *Tracker) emit(ctx context.Context, w io.Writer, ev Event) error {
	if t.validate {
		if err := ValidateEvent(ev); err != nil {
			t.log.Warn("ga4: payload failed validation", "event", ev.Name, "error", err)
		}
	}
	if err := WriteInline(w, ev); err != nil {
		return err
	}
	t.metrics.recordEmitted(ctx, ev.Name)
	t.log.Debug("ga4: event emitted", "event", ev.Name, "items", len(ev.Ecommerce.Items))
	return nil
}

func (t *Tracker) skip(ctx context.Context, ev EventName, reason string, args ...any) {
	t.metrics.recordSkipped(ctx, ev, reason)
	t.log.Debug("ga4: event skipped", append([]any{"event", ev, "reason", reason}, args...)...)
}
