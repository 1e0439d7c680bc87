// Package commerce is the ecommerce domain model the tracker reads from:
// products, carts and orders with their prices already computed by the
// storefront.
package commerce

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type ProductType string

const (
	ProductSimple    ProductType = "simple"
	ProductVariable  ProductType = "variable"
	ProductVariation ProductType = "variation"
)

type Attribute struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

type Product struct {
	ID         int64
	ParentID   int64 // set for variations
	SKU        string
	Name       string
	Type       ProductType
	Price      float64 // tax exclusive
	Categories []string
	Attributes []Attribute // variation attributes, in storefront order
}

func (p *Product) IsVariation() bool {
	return p.Type == ProductVariation
}

// CategoryID returns the id whose categories describe the product. Variations
// inherit the categories of their parent.
func (p *Product) CategoryID() int64 {
	if p.IsVariation() && p.ParentID != 0 {
		return p.ParentID
	}
	return p.ID
}

type CartLine struct {
	ProductID int64
	Product   *Product // nil when the product no longer resolves
	Quantity  int
	Variation []Attribute // attributes chosen when adding to cart
}

type Cart struct {
	SessionID string
	Lines     []CartLine
	Subtotal  float64 // tax and shipping exclusive
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

type OrderLine struct {
	ID        int64
	ProductID int64
	Name      string
	Quantity  int
	Total     float64 // line total after discounts, tax exclusive
}

// UnitPrice returns the tax exclusive unit price recorded on the line.
func (l OrderLine) UnitPrice() float64 {
	if l.Quantity <= 0 {
		return l.Total
	}
	return l.Total / float64(l.Quantity)
}

type Order struct {
	ID       int64
	Number   string // customer facing order number
	Key      string // secret shown only to the buyer, guards the confirmation page
	Currency string
	Subtotal float64
	Tax      float64
	Shipping float64
	Total    float64
	Lines    []OrderLine
}

// Catalog resolves products. Missing products return ErrNotFound.
type Catalog interface {
	Product(ctx context.Context, id int64) (*Product, error)
}

// Carts resolves the active cart for a storefront session.
type Carts interface {
	Cart(ctx context.Context, sessionID string) (*Cart, error)
}

// Orders resolves persisted orders. Missing orders return ErrNotFound.
type Orders interface {
	Order(ctx context.Context, id int64) (*Order, error)
}
