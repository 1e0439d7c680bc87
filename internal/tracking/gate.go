package tracking

import (
	"strings"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/config"
)

// Page describes the storefront page being rendered.
type Page struct {
	IsProduct       bool
	IsCheckout      bool
	IsOrderReceived bool // the order confirmation page, also a checkout page
	ProductID       int64
	OrderID         string
}

// Capabilities are resolved once per request by the host.
type Capabilities struct {
	Ecommerce bool
}

// Request is what the host knows about the current request.
type Request struct {
	Page      Page
	Caps      Capabilities
	SessionID string
}

// Gate decides which events may fire. It never mutates state.
type Gate struct {
	cfg  config.TrackingConfig
	caps Capabilities
}

func NewGate(cfg config.TrackingConfig, caps Capabilities) Gate {
	return Gate{cfg: cfg, caps: caps}
}

// Eligible returns the events whose page, toggle and platform conditions hold.
// Data dependent conditions are checked by the Allow* methods.
func (g Gate) Eligible(page Page) []EventName {
	var events []EventName
	for _, ev := range AllEvents {
		if g.pageAllows(ev, page) {
			events = append(events, ev)
		}
	}
	return events
}

func (g Gate) Enabled(ev EventName) bool {
	if !g.caps.Ecommerce {
		return false
	}
	switch ev {
	case EventViewItem:
		return g.cfg.ViewItem
	case EventAddToCart:
		return g.cfg.AddToCart
	case EventBeginCheckout:
		return g.cfg.BeginCheckout
	case EventPurchase:
		return g.cfg.Purchase
	default:
		return false
	}
}

func (g Gate) pageAllows(ev EventName, page Page) bool {
	if !g.Enabled(ev) {
		return false
	}
	switch ev {
	case EventViewItem:
		return page.IsProduct
	case EventBeginCheckout:
		return page.IsCheckout && !page.IsOrderReceived
	case EventPurchase:
		return strings.TrimSpace(page.OrderID) != ""
	default:
		return true
	}
}

func (g Gate) AllowViewItem(page Page, product *commerce.Product) bool {
	return g.pageAllows(EventViewItem, page) && product != nil
}

func (g Gate) AllowAddToCart() bool {
	return g.Enabled(EventAddToCart)
}

func (g Gate) AllowBeginCheckout(page Page, cart *commerce.Cart) bool {
	return g.pageAllows(EventBeginCheckout, page) && !cart.IsEmpty()
}

// AllowPurchase checks everything but order resolution, which the caller
// performs after it.
func (g Gate) AllowPurchase(orderID string, tracked bool) bool {
	return g.pageAllows(EventPurchase, Page{OrderID: orderID}) && !tracked
}
