package dispatch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scopeName is the instrumentation scope used for dispatch metrics and spans.
const scopeName = "github.com/MrWong99/chatroute/pkg/dispatch"

// Metrics holds the OpenTelemetry instruments recorded by a [Dispatcher].
// All fields are safe for concurrent use.
type Metrics struct {
	// Duration tracks the wall time of one dispatch cycle, handler included.
	// Use with attribute:
	//   attribute.String("phase", ...)
	Duration metric.Float64Histogram

	// Outcomes counts finished cycles. Use with attributes:
	//   attribute.String("phase", ...), attribute.String("route", ...), attribute.String("outcome", ...)
	Outcomes metric.Int64Counter

	// BotNameAborts counts exact-match attempts that addressed another bot.
	BotNameAborts metric.Int64Counter

	// HandlerErrors counts handler failures (errors and recovered panics).
	// Use with attribute:
	//   attribute.String("route", ...)
	HandlerErrors metric.Int64Counter
}

// dispatchBuckets are histogram boundaries in seconds. Most cycles finish in
// well under a millisecond; the upper buckets catch slow handlers.
var dispatchBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.25, 1, 5,
}

// NewMetrics creates the dispatch instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	if met.Duration, err = m.Float64Histogram("chatroute.dispatch.duration",
		metric.WithDescription("Duration of a dispatch cycle by resolving phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dispatchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("chatroute.dispatch.outcomes",
		metric.WithDescription("Dispatch cycles by phase, route and outcome."),
	); err != nil {
		return nil, err
	}
	if met.BotNameAborts, err = m.Int64Counter("chatroute.dispatch.bot_name_aborts",
		metric.WithDescription("Exact-match attempts addressed to a different bot."),
	); err != nil {
		return nil, err
	}
	if met.HandlerErrors, err = m.Int64Counter("chatroute.handler.errors",
		metric.WithDescription("Route handler failures by route."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) recordCycle(ctx context.Context, seconds float64, phase, routeName, outcome string) {
	m.Duration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("phase", phase)),
	)
	m.Outcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("route", routeName),
			attribute.String("outcome", outcome),
		),
	)
}
