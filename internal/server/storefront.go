package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/currency"
	"github.com/webextended/ga4-tracking/internal/store"
	"github.com/webextended/ga4-tracking/internal/tracking"
)

const (
	sessionCookieName  = "ga4_session"
	currencyCookieName = "currency"
)

type sessionKey struct{}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// sessionMiddleware assigns every visitor a cart session id.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookieName); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int(48 * time.Hour / time.Second),
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

// currencyMiddleware carries the visitor's currency selection, from the
// currency query parameter or cookie, into the request context.
func (s *Server) currencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("currency")
		if norm, ok := currency.Normalize(code); ok {
			http.SetCookie(w, &http.Cookie{
				Name:     currencyCookieName,
				Value:    norm,
				Path:     "/",
				SameSite: http.SameSiteLaxMode,
			})
			code = norm
		} else if c, err := r.Cookie(currencyCookieName); err == nil {
			code = c.Value
		}

		ctx := r.Context()
		if code != "" {
			ctx = currency.WithClientCurrency(ctx, code)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type shopData struct {
	Currency string
	Products []*commerce.Product
}

func (s *Server) handleShop(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context())
	if err != nil {
		s.log.Error("failed to list products", "error", err)
		http.Error(w, "Failed to load products", http.StatusInternalServerError)
		return
	}

	data := shopData{Currency: s.currency.Current(r.Context()), Products: products}
	s.renderPage(w, r, tracking.Page{}, "Shop", "shop", data)
}

type productData struct {
	Currency   string
	Product    *commerce.Product
	Variations []*commerce.Product
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	product, err := s.store.Product(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && product.IsVariation()) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("failed to load product", "product_id", id, "error", err)
		http.Error(w, "Failed to load product", http.StatusInternalServerError)
		return
	}

	var variations []*commerce.Product
	if product.Type == commerce.ProductVariable {
		variations, err = s.store.Variations(ctx, product.ID)
		if err != nil {
			s.log.Error("failed to load variations", "product_id", id, "error", err)
			http.Error(w, "Failed to load product", http.StatusInternalServerError)
			return
		}
	}

	data := productData{Currency: s.currency.Current(ctx), Product: product, Variations: variations}
	page := tracking.Page{IsProduct: true, ProductID: product.ID}
	s.renderPage(w, r, page, product.Name, "product", data)
}

// handleCartAdd adds the posted product, or its chosen variation, to the
// visitor's cart and redirects back.
func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	id := formInt(r, "variation_id")
	if id <= 0 {
		id = formInt(r, "add-to-cart")
	}
	if id <= 0 {
		id = formInt(r, "product_id")
	}
	if id <= 0 {
		http.Error(w, "Invalid product ID", http.StatusBadRequest)
		return
	}
	quantity := int(formInt(r, "quantity"))

	ctx := r.Context()
	product, err := s.store.Product(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("failed to load product", "product_id", id, "error", err)
		http.Error(w, "Failed to add to cart", http.StatusInternalServerError)
		return
	}
	if product.Type == commerce.ProductVariable {
		http.Redirect(w, r, "/product/"+strconv.FormatInt(product.ID, 10), http.StatusSeeOther)
		return
	}

	var variation []commerce.Attribute
	if product.IsVariation() {
		variation = product.Attributes
	}
	if err := s.store.AddToCart(ctx, sessionID(ctx), product.ID, quantity, variation); err != nil {
		s.log.Error("failed to add to cart", "product_id", id, "error", err)
		http.Error(w, "Failed to add to cart", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, backURL(r), http.StatusSeeOther)
}

type checkoutData struct {
	Currency string
	Cart     *commerce.Cart
	Tax      float64
	Shipping float64
	Total    float64
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := s.store.Cart(ctx, sessionID(ctx))
	if err != nil {
		s.log.Error("failed to load cart", "error", err)
		http.Error(w, "Failed to load cart", http.StatusInternalServerError)
		return
	}

	code := s.currency.Current(ctx)
	order := s.orderFromCart(code, cart)
	data := checkoutData{Currency: code, Cart: cart, Tax: order.Tax, Shipping: order.Shipping, Total: order.Total}
	s.renderPage(w, r, tracking.Page{IsCheckout: true}, "Checkout", "checkout", data)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionID(ctx)

	cart, err := s.store.Cart(ctx, session)
	if err != nil {
		s.log.Error("failed to load cart", "error", err)
		http.Error(w, "Failed to place order", http.StatusInternalServerError)
		return
	}
	order := s.orderFromCart(s.currency.Current(ctx), cart)
	if len(order.Lines) == 0 {
		http.Redirect(w, r, "/checkout", http.StatusSeeOther)
		return
	}

	placed, err := s.store.CreateOrder(ctx, session, order)
	if err != nil {
		s.log.Error("failed to create order", "error", err)
		http.Error(w, "Failed to place order", http.StatusInternalServerError)
		return
	}
	s.log.Info("order placed", "order_id", placed.ID, "number", placed.Number, "total", placed.Total)

	http.Redirect(w, r, orderReceivedURL(placed), http.StatusSeeOther)
}

func orderReceivedURL(order *commerce.Order) string {
	return "/checkout/order-received/" + strconv.FormatInt(order.ID, 10) + "?key=" + url.QueryEscape(order.Key)
}

// orderFromCart prices the resolvable cart lines into an unsaved order.
func (s *Server) orderFromCart(code string, cart *commerce.Cart) *commerce.Order {
	order := &commerce.Order{Currency: code}
	if cart.IsEmpty() {
		return order
	}

	for _, line := range cart.Lines {
		if line.Product == nil {
			continue
		}
		name := line.Product.Name
		total := currency.Round(code, line.Product.Price*float64(line.Quantity))
		order.Lines = append(order.Lines, commerce.OrderLine{
			ProductID: line.ProductID,
			Name:      name,
			Quantity:  line.Quantity,
			Total:     total,
		})
		order.Subtotal += total
	}
	if len(order.Lines) == 0 {
		return order
	}

	order.Subtotal = currency.Round(code, order.Subtotal)
	order.Tax = currency.Round(code, order.Subtotal*s.ecommerce.TaxRate)
	order.Shipping = currency.Round(code, s.ecommerce.Shipping)
	order.Total = currency.Round(code, order.Subtotal+order.Tax+order.Shipping)
	return order
}

type receivedData struct {
	Order *commerce.Order
}

func (s *Server) handleOrderReceived(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	order, err := s.store.Order(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("failed to load order", "order_id", id, "error", err)
		http.Error(w, "Failed to load order", http.StatusInternalServerError)
		return
	}
	// Order ids are sequential; only the buyer's redirect carries the key.
	if !orderKeyMatches(order, r.URL.Query().Get("key")) {
		http.NotFound(w, r)
		return
	}

	page := tracking.Page{IsCheckout: true, IsOrderReceived: true, OrderID: raw}
	s.renderPage(w, r, page, "Order received", "received", receivedData{Order: order})
}

func orderKeyMatches(order *commerce.Order, key string) bool {
	if order.Key == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(order.Key), []byte(key)) == 1
}

func formInt(r *http.Request, key string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(key)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// backURL returns the same-site referer path, or the shop.
func backURL(r *http.Request) string {
	ref := r.Referer()
	if ref == "" {
		return "/"
	}
	if i := strings.Index(ref, r.Host); r.Host != "" && i >= 0 {
		if path := ref[i+len(r.Host):]; strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "//") {
			return path
		}
	}
	return "/"
}
