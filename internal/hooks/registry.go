// Package hooks is the storefront's extension point registry. A Registry is
// built per request, filled by the tracker and drained by the page renderer.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"sync"

	"github.com/webextended/ga4-tracking/internal/tracking"
)

var ErrUnknownAction = errors.New("unknown action")

type entry struct {
	priority int
	seq      int
	fn       tracking.InjectFunc
}

// Registry implements tracking.PageRenderer, tracking.OrderLifecycleNotifier
// and tracking.AsyncRequestRouter.
type Registry struct {
	mu      sync.Mutex
	seq     int
	points  map[tracking.InjectionPoint][]entry
	orders  []tracking.OrderCompletedFunc
	actions map[string]tracking.ActionFunc
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		points:  make(map[tracking.InjectionPoint][]entry),
		actions: make(map[string]tracking.ActionFunc),
		log:     log,
	}
}

func (r *Registry) Add(point tracking.InjectionPoint, priority int, fn tracking.InjectFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.points[point] = append(r.points[point], entry{priority: priority, seq: r.seq, fn: fn})
}

func (r *Registry) OnOrderCompleted(fn tracking.OrderCompletedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, fn)
}

func (r *Registry) HandleAction(name string, fn tracking.ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

// Render runs the functions added at point, lowest priority first and in
// registration order within a priority. A failing function is logged and its
// partial output dropped; the rest still render.
func (r *Registry) Render(ctx context.Context, point tracking.InjectionPoint, w io.Writer) error {
	r.mu.Lock()
	entries := append([]entry(nil), r.points[point]...)
	r.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})

	for _, e := range entries {
		var buf bytes.Buffer
		if err := e.fn(ctx, &buf); err != nil {
			r.log.Error("hook failed", "point", point, "priority", e.priority, "error", err)
			continue
		}
		if _, err := buf.WriteTo(w); err != nil {
			return fmt.Errorf("failed to write %s output: %w", point, err)
		}
	}
	return nil
}

// RenderString is Render into a string, for templates.
func (r *Registry) RenderString(ctx context.Context, point tracking.InjectionPoint) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(ctx, point, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CompleteOrder notifies order listeners that orderID is being shown as
// completed.
func (r *Registry) CompleteOrder(ctx context.Context, w io.Writer, orderID string) error {
	r.mu.Lock()
	fns := append([]tracking.OrderCompletedFunc(nil), r.orders...)
	r.mu.Unlock()

	for _, fn := range fns {
		var buf bytes.Buffer
		if err := fn(ctx, &buf, orderID); err != nil {
			r.log.Error("order completed hook failed", "order_id", orderID, "error", err)
			continue
		}
		if _, err := buf.WriteTo(w); err != nil {
			return fmt.Errorf("failed to write order output: %w", err)
		}
	}
	return nil
}

// Dispatch runs the handler registered for action.
func (r *Registry) Dispatch(ctx context.Context, action string, form url.Values) (any, error) {
	r.mu.Lock()
	fn, ok := r.actions[action]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return fn(ctx, form)
}

// HasAction reports whether action has a handler.
func (r *Registry) HasAction(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.actions[action]
	return ok
}
