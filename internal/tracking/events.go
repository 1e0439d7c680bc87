// Package tracking assembles GA4 Enhanced Ecommerce events from storefront
// state and emits them as dataLayer pushes.
package tracking

type EventName string

const (
	EventViewItem      EventName = "view_item"
	EventAddToCart     EventName = "add_to_cart"
	EventBeginCheckout EventName = "begin_checkout"
	EventPurchase      EventName = "purchase"
)

// AllEvents lists the tracked events in pipeline order.
var AllEvents = []EventName{EventViewItem, EventAddToCart, EventBeginCheckout, EventPurchase}

// ItemRecord is one entry of a payload's items list.
type ItemRecord struct {
	ItemID   string  `json:"item_id"`
	ItemName string  `json:"item_name"`
	Category string  `json:"category,omitempty"`
	Variant  string  `json:"item_variant,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Payload is the ecommerce object of an event. TransactionID, Tax and
// Shipping are only set for purchase.
type Payload struct {
	TransactionID string       `json:"transaction_id,omitempty"`
	Currency      string       `json:"currency"`
	Value         float64      `json:"value"`
	Tax           *float64     `json:"tax,omitempty"`
	Shipping      *float64     `json:"shipping,omitempty"`
	Items         []ItemRecord `json:"items"`
}

// Event is the object handed to dataLayer.push.
type Event struct {
	Name      EventName `json:"event"`
	Ecommerce Payload   `json:"ecommerce"`
}

// AddToCartData is the on-demand response body for add_to_cart.
type AddToCartData struct {
	Currency string     `json:"currency"`
	Value    float64    `json:"value"`
	Item     ItemRecord `json:"item"`
}
