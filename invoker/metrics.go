package invoker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hupe1980/toolmesh/invoker"

// metrics holds the RED instruments of the invoker.
type metrics struct {
	calls    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) *metrics {
	meter := mp.Meter(meterName)

	m := &metrics{}

	// Instrument creation only fails for invalid names; the returned
	// instruments are usable no-ops in that case.
	m.calls, _ = meter.Int64Counter("toolmesh.invocations",
		metric.WithDescription("Number of tool invocations"),
		metric.WithUnit("{call}"))
	m.errors, _ = meter.Int64Counter("toolmesh.invocation.errors",
		metric.WithDescription("Number of failed tool invocations"),
		metric.WithUnit("{call}"))
	m.duration, _ = meter.Float64Histogram("toolmesh.invocation.duration",
		metric.WithDescription("Duration of tool invocations"),
		metric.WithUnit("ms"))

	return m
}

func (m *metrics) record(ctx context.Context, toolName, status string, dur time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("status", status),
	)

	m.calls.Add(ctx, 1, attrs)
	if status == statusError {
		m.errors.Add(ctx, 1, attrs)
	}
	m.duration.Record(ctx, float64(dur.Microseconds())/1000, attrs)
}
