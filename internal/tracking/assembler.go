package tracking

import (
	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/currency"
)

// ViewItem builds the view_item event for a single product view.
func ViewItem(code string, item ItemRecord) Event {
	item.Quantity = 1
	item.Price = currency.Round(code, item.Price)
	return Event{
		Name: EventViewItem,
		Ecommerce: Payload{
			Currency: code,
			Value:    item.Price,
			Items:    []ItemRecord{item},
		},
	}
}

// AddToCartValue returns the on-demand add_to_cart data: value is unit price times quantity.
func AddToCartValue(code string, item ItemRecord) AddToCartData {
	item.Quantity = atLeastOne(item.Quantity)
	item.Price = currency.Round(code, item.Price)
	return AddToCartData{
		Currency: code,
		Value:    currency.Round(code, item.Price*float64(item.Quantity)),
		Item:     item,
	}
}

// AddToCart wraps AddToCartValue as a dataLayer event.
func AddToCart(code string, item ItemRecord) Event {
	data := AddToCartValue(code, item)
	return Event{
		Name: EventAddToCart,
		Ecommerce: Payload{
			Currency: data.Currency,
			Value:    data.Value,
			Items:    []ItemRecord{data.Item},
		},
	}
}

// BeginCheckout uses the cart's own subtotal as value; items are not summed.
func BeginCheckout(code string, cart *commerce.Cart, items []ItemRecord) Event {
	return Event{
		Name: EventBeginCheckout,
		Ecommerce: Payload{
			Currency: code,
			Value:    currency.Round(code, cart.Subtotal),
			Items:    roundItems(code, items),
		},
	}
}

// PurchaseValue is the order subtotal, or total minus tax and shipping when
// the subtotal is not positive.
func PurchaseValue(order *commerce.Order) (value float64, fallback bool) {
	if order.Subtotal > 0 {
		return order.Subtotal, false
	}
	return order.Total - order.Tax - order.Shipping, true
}

func Purchase(code string, order *commerce.Order, items []ItemRecord) Event {
	value, _ := PurchaseValue(order)
	tax := currency.Round(code, order.Tax)
	shipping := currency.Round(code, order.Shipping)

	return Event{
		Name: EventPurchase,
		Ecommerce: Payload{
			TransactionID: order.Number,
			Currency:      code,
			Value:         currency.Round(code, value),
			Tax:           &tax,
			Shipping:      &shipping,
			Items:         roundItems(code, items),
		},
	}
}

func roundItems(code string, items []ItemRecord) []ItemRecord {
	out := make([]ItemRecord, len(items))
	for i, item := range items {
		item.Price = currency.Round(code, item.Price)
		out[i] = item
	}
	return out
}
