package tracking

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/webextended/ga4-tracking/internal/tracking"

// Skip reasons reported on ga4.events.skipped.
const (
	reasonNoProduct   = "product_not_found"
	reasonEmptyCart   = "empty_cart"
	reasonTracked     = "already_tracked"
	reasonNoOrder     = "order_not_found"
	reasonLookupError = "lookup_error"
)

type metrics struct {
	emitted metric.Int64Counter
	skipped metric.Int64Counter
	ajax    metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	var m metrics
	var err error
	m.emitted, err = meter.Int64Counter("ga4.events.emitted",
		metric.WithDescription("Ecommerce events emitted"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	m.skipped, err = meter.Int64Counter("ga4.events.skipped",
		metric.WithDescription("Eligible ecommerce events that were not emitted"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	m.ajax, err = meter.Int64Counter("ga4.ajax.requests",
		metric.WithDescription("Async product data requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) recordEmitted(ctx context.Context, ev EventName) {
	m.emitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(ev))))
}

func (m *metrics) recordSkipped(ctx context.Context, ev EventName, reason string) {
	m.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(ev)),
		attribute.String("reason", reason),
	))
}

func (m *metrics) recordAjax(ctx context.Context, outcome string) {
	m.ajax.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
