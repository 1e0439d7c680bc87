package tracking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/webextended/ga4-tracking/internal/commerce"
)

// ItemBuilder maps products, cart lines and order lines to ItemRecords.
type ItemBuilder struct {
	catalog commerce.Catalog
}

func NewItemBuilder(catalog commerce.Catalog) *ItemBuilder {
	return &ItemBuilder{catalog: catalog}
}

// ItemID returns the SKU when set, otherwise the numeric id.
func ItemID(p *commerce.Product) string {
	if sku := strings.TrimSpace(p.SKU); sku != "" {
		return sku
	}
	return strconv.FormatInt(p.ID, 10)
}

// FromProduct builds an item priced at the product's current unit price.
func (b *ItemBuilder) FromProduct(ctx context.Context, p *commerce.Product, quantity int) ItemRecord {
	item := ItemRecord{
		ItemID:   ItemID(p),
		ItemName: p.Name,
		Price:    p.Price,
		Quantity: atLeastOne(quantity),
		Category: b.category(ctx, p),
	}
	if p.IsVariation() {
		item.Variant = joinValues(p.Attributes)
	}
	return item
}

// FromCartLine builds an item for a cart line. Lines whose product no longer
// resolves are reported as skipped.
func (b *ItemBuilder) FromCartLine(ctx context.Context, line commerce.CartLine) (ItemRecord, bool) {
	if line.Product == nil {
		return ItemRecord{}, false
	}

	item := b.FromProduct(ctx, line.Product, line.Quantity)
	if line.Product.IsVariation() && len(line.Variation) > 0 {
		item.Variant = joinValues(line.Variation)
	}
	return item, true
}

// FromOrderLine builds an item from the line's recorded price. The product
// is only consulted for id, category and variant.
func (b *ItemBuilder) FromOrderLine(ctx context.Context, line commerce.OrderLine) (ItemRecord, bool, error) {
	p, err := b.catalog.Product(ctx, line.ProductID)
	if errors.Is(err, commerce.ErrNotFound) {
		return ItemRecord{}, false, nil
	}
	if err != nil {
		return ItemRecord{}, false, fmt.Errorf("failed to resolve product %d: %w", line.ProductID, err)
	}

	item := b.FromProduct(ctx, p, line.Quantity)
	item.ItemName = line.Name
	if item.ItemName == "" {
		item.ItemName = p.Name
	}
	item.Price = line.UnitPrice()
	return item, true, nil
}

func (b *ItemBuilder) category(ctx context.Context, p *commerce.Product) string {
	if len(p.Categories) > 0 {
		return p.Categories[0]
	}
	if p.CategoryID() == p.ID || b.catalog == nil {
		return ""
	}

	parent, err := b.catalog.Product(ctx, p.CategoryID())
	if err != nil || len(parent.Categories) == 0 {
		return ""
	}
	return parent.Categories[0]
}

func joinValues(attrs []commerce.Attribute) string {
	values := make([]string, 0, len(attrs))
	for _, a := range attrs {
		values = append(values, a.Value)
	}
	return strings.Join(values, ", ")
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
