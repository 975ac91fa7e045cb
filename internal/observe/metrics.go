// Package observe provides application-wide observability primitives for
// chatroute: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Dispatch metrics live with the
// dispatcher (pkg/dispatch); this package covers the bot around it. Tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for application metrics.
const meterName = "github.com/MrWong99/chatroute"

// Metrics holds the OpenTelemetry instruments of the bot application.
// All fields are safe for concurrent use.
type Metrics struct {
	// MessagesReceived counts inbound messages handed to the dispatcher.
	// Use with attribute:
	//   attribute.String("source", "message"|"component")
	MessagesReceived metric.Int64Counter

	// ReplyErrors counts replies the platform rejected. Use with attribute:
	//   attribute.String("kind", "message"|"interaction")
	ReplyErrors metric.Int64Counter

	// ACLLookupDuration tracks operators store latency. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	ACLLookupDuration metric.Float64Histogram

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("name", ...), attribute.String("to", "open"|"half-open"|"closed")
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks ops endpoint latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// lookupBuckets are histogram boundaries in seconds for store round trips.
var lookupBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MessagesReceived, err = m.Int64Counter("chatroute.messages.received",
		metric.WithDescription("Inbound messages handed to the dispatcher by source."),
	); err != nil {
		return nil, err
	}
	if met.ReplyErrors, err = m.Int64Counter("chatroute.reply.errors",
		metric.WithDescription("Replies rejected by the chat platform by kind."),
	); err != nil {
		return nil, err
	}
	if met.ACLLookupDuration, err = m.Float64Histogram("chatroute.acl.lookup.duration",
		metric.WithDescription("Latency of operators store calls by operation and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(lookupBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("chatroute.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("chatroute.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordMessage records one inbound message from source.
func (m *Metrics) RecordMessage(ctx context.Context, source string) {
	m.MessagesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordReplyError records a rejected reply of the given kind.
func (m *Metrics) RecordReplyError(ctx context.Context, kind string) {
	m.ReplyErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordACLLookup records the latency of one operators store call.
func (m *Metrics) RecordACLLookup(ctx context.Context, op string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ACLLookupDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition records that breaker name switched to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}
