package tracking

import (
	"context"
	"io"
	"net/url"

	"github.com/webextended/ga4-tracking/internal/config"
)

// InjectionPoint names a place in the page output the host renders hooks at.
type InjectionPoint string

const (
	PointHead     InjectionPoint = "head"
	PointBodyOpen InjectionPoint = "body_open"
	PointFooter   InjectionPoint = "footer"
)

// DefaultPriority is the priority of ecommerce event output.
const DefaultPriority = 10

// PointFor maps a configured placement to its injection point.
func PointFor(p config.Placement) InjectionPoint {
	switch p {
	case config.PlacementFooter:
		return PointFooter
	case config.PlacementAfterBody:
		return PointBodyOpen
	default:
		return PointHead
	}
}

type InjectFunc func(ctx context.Context, w io.Writer) error

// PageRenderer collects output for the injection points of one page.
type PageRenderer interface {
	Add(point InjectionPoint, priority int, fn InjectFunc)
}

type OrderCompletedFunc func(ctx context.Context, w io.Writer, orderID string) error

// OrderLifecycleNotifier calls registered functions when the host shows a
// completed order.
type OrderLifecycleNotifier interface {
	OnOrderCompleted(fn OrderCompletedFunc)
}

type ActionFunc func(ctx context.Context, form url.Values) (any, error)

// AsyncRequestRouter dispatches browser-originated async calls by action name.
type AsyncRequestRouter interface {
	HandleAction(name string, fn ActionFunc)
}
