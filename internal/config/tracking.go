package config

import (
	"fmt"
	"strings"
)

// OptionName is the settings key the tracking configuration is stored under.
const OptionName = "ga4_ecommerce_settings"

type Placement string

const (
	PlacementHeader    Placement = "header"
	PlacementFooter    Placement = "footer"
	PlacementAfterBody Placement = "after_body"
)

// Priorities lists the priority choices offered by the settings form.
// Lower numbers render first.
var Priorities = []int{1, 5, 10, 20}

type EventToggles struct {
	ViewItem      bool `json:"view_item_enabled"`
	AddToCart     bool `json:"add_to_cart_enabled"`
	BeginCheckout bool `json:"begin_checkout_enabled"`
	Purchase      bool `json:"purchase_enabled"`
}

// TrackingConfig is the single settings record read on every request.
type TrackingConfig struct {
	Snippet   string    `json:"ga4_code"`
	Placement Placement `json:"code_placement"`
	Priority  int       `json:"code_priority"`
	EventToggles
}

// DefaultTracking returns the record written on activation.
func DefaultTracking() TrackingConfig {
	return TrackingConfig{
		Placement: PlacementHeader,
		Priority:  1,
		EventToggles: EventToggles{
			ViewItem:      true,
			AddToCart:     true,
			BeginCheckout: true,
			Purchase:      true,
		},
	}
}

// HasSnippet reports whether a base tracking snippet is configured.
func (c TrackingConfig) HasSnippet() bool {
	return strings.TrimSpace(c.Snippet) != ""
}

// Normalize fills zero-valued placement and priority with defaults.
func (c TrackingConfig) Normalize() TrackingConfig {
	if c.Placement == "" {
		c.Placement = PlacementHeader
	}
	if c.Priority <= 0 {
		c.Priority = 1
	}
	return c
}

func (c TrackingConfig) Validate() error {
	if _, err := ParsePlacement(string(c.Placement)); err != nil {
		return err
	}
	if c.Priority <= 0 {
		return fmt.Errorf("invalid priority %d: must be positive", c.Priority)
	}
	return nil
}

func ParsePlacement(s string) (Placement, error) {
	switch p := Placement(strings.TrimSpace(s)); p {
	case PlacementHeader, PlacementFooter, PlacementAfterBody:
		return p, nil
	default:
		return "", fmt.Errorf("invalid placement %q: must be header, footer or after_body", s)
	}
}

// Label returns the human readable name used by the settings form and CLI prompts.
func (p Placement) Label() string {
	switch p {
	case PlacementHeader:
		return "Header (head) - Recommended"
	case PlacementFooter:
		return "Footer"
	case PlacementAfterBody:
		return "After Body Tag (body open)"
	default:
		return string(p)
	}
}

func PriorityLabel(p int) string {
	switch p {
	case 1:
		return "Very High Priority (1) - Loads First"
	case 5:
		return "High Priority (5)"
	case 10:
		return "Normal Priority (10) - Default"
	case 20:
		return "Low Priority (20)"
	default:
		return fmt.Sprintf("Priority (%d)", p)
	}
}
