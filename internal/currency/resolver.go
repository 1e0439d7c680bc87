// Package currency resolves the ISO 4217 currency a payload is reported in,
// honoring a per-visitor currency override.
package currency

import (
	"context"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"

	"github.com/webextended/ga4-tracking/internal/commerce"
)

const fallback = "USD"

type ctxKey struct{}

// WithClientCurrency returns a context carrying the visitor's selected currency.
func WithClientCurrency(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, ctxKey{}, code)
}

// ClientCurrency returns the currency selected by the visitor, if any.
func ClientCurrency(ctx context.Context) (string, bool) {
	code, ok := ctx.Value(ctxKey{}).(string)
	return code, ok && code != ""
}

type Resolver struct {
	base    string
	allowed map[string]bool
}

// NewResolver creates a resolver with a store currency and the client
// currencies visitors may switch to. An empty allowed list disables switching.
func NewResolver(base string, allowed []string) *Resolver {
	r := &Resolver{base: fallback, allowed: make(map[string]bool)}
	if code, ok := Normalize(base); ok {
		r.base = code
	}
	for _, a := range allowed {
		if code, ok := Normalize(a); ok {
			r.allowed[code] = true
		}
	}
	return r
}

// Base returns the store currency.
func (r *Resolver) Base() string {
	return r.base
}

// Current returns the currency for the storefront request in ctx.
func (r *Resolver) Current(ctx context.Context) string {
	if code, ok := ClientCurrency(ctx); ok {
		if norm, valid := Normalize(code); valid && (norm == r.base || r.allowed[norm]) {
			return norm
		}
	}
	return r.base
}

// ForOrder returns the currency recorded on the order, falling back to Current.
func (r *Resolver) ForOrder(ctx context.Context, order *commerce.Order) string {
	if order != nil {
		if code, ok := Normalize(order.Currency); ok {
			return code
		}
	}
	return r.Current(ctx)
}

// Normalize upper-cases code and reports whether it is a known ISO 4217 currency.
func Normalize(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", false
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", false
	}
	return unit.String(), true
}

// Scale returns the number of minor-unit digits of code (2 when unknown).
func Scale(code string) int {
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ := currency.Standard.Rounding(unit)
		return scale
	}
	return 2
}

// Round rounds amount to the standard minor unit of code.
func Round(code string, amount float64) float64 {
	pow := math.Pow(10, float64(Scale(code)))
	return math.Round(amount*pow) / pow
}

// Format renders amount for display, e.g. "59.97 USD".
func Format(code string, amount float64) string {
	return strconv.FormatFloat(Round(code, amount), 'f', Scale(code), 64) + " " + code
}
