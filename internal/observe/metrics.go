// Package observe provides the observability primitives of the gateway:
// OpenTelemetry metrics, distributed tracing, trace-aware structured logging
// and the HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so the local host can serve
// them on /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/MrWong99/baristagate"

// Invocation status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the gateway.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per request stage ---

	// InvocationDuration tracks end-to-end handling of one invocation. Use
	// with attributes: attribute.String("operation", ...), attribute.String("status", ...)
	InvocationDuration metric.Float64Histogram

	// CredentialDuration tracks obtaining a credential, including cache hits.
	CredentialDuration metric.Float64Histogram

	// RetrievalDuration tracks knowledge retrieval latency.
	RetrievalDuration metric.Float64Histogram

	// ModelDuration tracks generative model latency. Use with attribute:
	//   attribute.String("modality", ...)
	ModelDuration metric.Float64Histogram

	// --- Counters ---

	// Invocations counts handled invocations. Use with attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	Invocations metric.Int64Counter

	// ProviderRequests counts upstream API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// RetrievalDegradations counts requests that continued without
	// reference data. Use with attribute: attribute.String("reason", ...)
	RetrievalDegradations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts upstream errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// InFlight tracks invocations currently being handled.
	InFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// token exchanges and model calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.InvocationDuration, err = m.Float64Histogram("baristagate.invocation.duration",
		metric.WithDescription("End-to-end latency of one gateway invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CredentialDuration, err = m.Float64Histogram("baristagate.credential.duration",
		metric.WithDescription("Latency of obtaining a federated credential."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("baristagate.retrieval.duration",
		metric.WithDescription("Latency of knowledge retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelDuration, err = m.Float64Histogram("baristagate.model.duration",
		metric.WithDescription("Latency of generative model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Invocations, err = m.Int64Counter("baristagate.invocations",
		metric.WithDescription("Total invocations by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("baristagate.provider.requests",
		metric.WithDescription("Total upstream API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDegradations, err = m.Int64Counter("baristagate.retrieval.degradations",
		metric.WithDescription("Total requests answered without reference data, by reason."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("baristagate.provider.errors",
		metric.WithDescription("Total upstream errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.InFlight, err = m.Int64UpDownCounter("baristagate.invocations.in_flight",
		metric.WithDescription("Number of invocations currently being handled."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("baristagate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordInvocation records the outcome and latency of one invocation.
func (m *Metrics) RecordInvocation(ctx context.Context, operation, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	m.Invocations.Add(ctx, 1, attrs)
	m.InvocationDuration.Record(ctx, seconds, attrs)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRetrievalDegraded records a request that proceeded without
// reference data.
func (m *Metrics) RecordRetrievalDegraded(ctx context.Context, reason string) {
	m.RetrievalDegradations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
