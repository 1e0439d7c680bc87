package tracking

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webextended/ga4-tracking/internal/commerce"
	"github.com/webextended/ga4-tracking/internal/currency"
)

func TestViewItem(t *testing.T) {
	ev := ViewItem("USD", ItemRecord{ItemID: "TSHIRT", ItemName: "T-Shirt", Price: 19.99, Quantity: 4})

	assert.Equal(t, EventViewItem, ev.Name)
	assert.Equal(t, "USD", ev.Ecommerce.Currency)
	assert.Equal(t, 19.99, ev.Ecommerce.Value)
	require.Len(t, ev.Ecommerce.Items, 1)
	assert.Equal(t, 1, ev.Ecommerce.Items[0].Quantity)
	assert.Nil(t, ev.Ecommerce.Tax)
	assert.Empty(t, ev.Ecommerce.TransactionID)
}

func TestAddToCartValue(t *testing.T) {
	data := AddToCartValue("USD", ItemRecord{ItemID: "TSHIRT", Price: 19.99, Quantity: 3})
	assert.Equal(t, 59.97, data.Value)
	assert.Equal(t, 3, data.Item.Quantity)

	data = AddToCartValue("JPY", ItemRecord{ItemID: "X", Price: 1234.6, Quantity: 1})
	assert.Equal(t, 1235.0, data.Value)
}

func TestAddToCartValue_Property(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("value is rounded price times quantity", prop.ForAll(
		func(cents int, qty int) bool {
			price := float64(cents) / 100
			data := AddToCartValue("USD", ItemRecord{Price: price, Quantity: qty})
			return data.Value == currency.Round("USD", price*float64(qty)) && data.Item.Quantity == qty
		},
		gen.IntRange(0, 1000000),
		gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}

func TestBeginCheckout_UsesCartSubtotal(t *testing.T) {
	cart := &commerce.Cart{Subtotal: 100}
	items := []ItemRecord{
		{ItemID: "A", Price: 30.004, Quantity: 2},
		{ItemID: "B", Price: 10, Quantity: 1},
	}

	ev := BeginCheckout("USD", cart, items)
	assert.Equal(t, 100.0, ev.Ecommerce.Value)
	assert.Len(t, ev.Ecommerce.Items, 2)
	assert.Equal(t, 30.0, ev.Ecommerce.Items[0].Price)
}

func TestPurchaseValue(t *testing.T) {
	value, fallback := PurchaseValue(&commerce.Order{Subtotal: 80, Total: 100, Tax: 10, Shipping: 10})
	assert.Equal(t, 80.0, value)
	assert.False(t, fallback)

	value, fallback = PurchaseValue(&commerce.Order{Subtotal: 0, Total: 120, Tax: 15, Shipping: 5})
	assert.Equal(t, 100.0, value)
	assert.True(t, fallback)
}

func TestPurchase(t *testing.T) {
	order := &commerce.Order{ID: 7, Number: "1007", Subtotal: 59.97, Tax: 4.8, Shipping: 5, Total: 69.77}
	ev := Purchase("EUR", order, []ItemRecord{{ItemID: "TSHIRT", ItemName: "T-Shirt", Price: 19.99, Quantity: 3}})

	assert.Equal(t, EventPurchase, ev.Name)
	assert.Equal(t, "1007", ev.Ecommerce.TransactionID)
	assert.Equal(t, "EUR", ev.Ecommerce.Currency)
	assert.Equal(t, 59.97, ev.Ecommerce.Value)
	require.NotNil(t, ev.Ecommerce.Tax)
	require.NotNil(t, ev.Ecommerce.Shipping)
	assert.Equal(t, 4.8, *ev.Ecommerce.Tax)
	assert.Equal(t, 5.0, *ev.Ecommerce.Shipping)
}

func TestPurchase_EmptyItemsStillEmitted(t *testing.T) {
	ev := Purchase("USD", &commerce.Order{Number: "1", Subtotal: 10}, nil)
	assert.NotNil(t, ev.Ecommerce.Items)
	assert.Empty(t, ev.Ecommerce.Items)
}
