package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for the client.
//
// http.client.* instruments describe single HTTP exchanges and follow the
// OTel semantic conventions. rqlite.client.* instruments describe logical
// calls and the failover machinery around them.
type metrics struct {
	// === Request Duration & Size Metrics ===

	// requestDuration measures one HTTP exchange in seconds.
	requestDuration metric.Float64Histogram

	// requestBodySize measures the size of request bodies in bytes.
	requestBodySize metric.Int64Histogram

	// responseBodySize measures the size of response bodies in bytes.
	responseBodySize metric.Int64Histogram

	// === Active Request Tracking ===

	// activeRequests tracks the number of in-flight exchanges.
	activeRequests metric.Int64UpDownCounter

	// === Error Metrics ===

	// requestErrors counts transport errors by error type.
	requestErrors metric.Int64Counter

	// === Logical Call Metrics ===

	// dispatchDuration measures a logical call including failover and
	// redirects.
	dispatchDuration metric.Float64Histogram

	// failoverAttempts counts moves to the next host after a connection
	// failure.
	failoverAttempts metric.Int64Counter

	// failoverExhausted counts calls that failed on every host they were
	// allowed to try.
	failoverExhausted metric.Int64Counter

	// redirects counts followed 301/302 hops.
	redirects metric.Int64Counter

	// rateLimited counts calls rejected by the client-side rate limiter.
	rateLimited metric.Int64Counter

	// === Circuit Breaker Metrics ===

	// breakerRequests counts requests seen by node breakers by outcome.
	breakerRequests metric.Int64Counter

	// breakerState reports the current state of each node breaker
	// (0 closed, 1 half-open, 2 open).
	breakerState metric.Int64Gauge
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	// Request duration histogram with OTel semconv recommended buckets
	m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	// Request body size histogram
	m.requestBodySize, err = meter.Int64Histogram(
		"http.client.request.body.size",
		metric.WithDescription("Size of HTTP client request bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(
			0, 100, 1024, 10*1024, 100*1024, 1024*1024, 10*1024*1024,
		),
	)
	if err != nil {
		return nil, err
	}

	// Response body size histogram
	m.responseBodySize, err = meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP client response bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(
			0, 100, 1024, 10*1024, 100*1024, 1024*1024, 10*1024*1024,
		),
	)
	if err != nil {
		return nil, err
	}

	// Active requests counter
	m.activeRequests, err = meter.Int64UpDownCounter(
		"http.client.active_requests",
		metric.WithDescription("Number of active HTTP client requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Request errors counter
	m.requestErrors, err = meter.Int64Counter(
		"http.client.request.error",
		metric.WithDescription("Number of HTTP client request errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	// Logical call duration histogram
	m.dispatchDuration, err = meter.Float64Histogram(
		"rqlite.client.dispatch.duration",
		metric.WithDescription("Duration of rqlite calls including failover and redirects in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
		),
	)
	if err != nil {
		return nil, err
	}

	// Failover attempts counter
	m.failoverAttempts, err = meter.Int64Counter(
		"rqlite.client.failover.attempts",
		metric.WithDescription("Number of times a call moved on to the next host"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	// Failover exhausted counter
	m.failoverExhausted, err = meter.Int64Counter(
		"rqlite.client.failover.exhausted",
		metric.WithDescription("Number of calls that could not reach any allowed host"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	// Redirects counter
	m.redirects, err = meter.Int64Counter(
		"rqlite.client.redirects",
		metric.WithDescription("Number of redirects followed"),
		metric.WithUnit("{redirect}"),
	)
	if err != nil {
		return nil, err
	}

	// Rate limited counter
	m.rateLimited, err = meter.Int64Counter(
		"rqlite.client.rate_limited",
		metric.WithDescription("Number of calls rejected by the client rate limiter"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	// Breaker requests counter
	m.breakerRequests, err = meter.Int64Counter(
		"rqlite.client.breaker.requests",
		metric.WithDescription("Number of requests seen by node circuit breakers"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Breaker state gauge
	m.breakerState, err = meter.Int64Gauge(
		"rqlite.client.breaker.state",
		metric.WithDescription("Circuit breaker state per node (0 closed, 1 half-open, 2 open)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// recordRequestDuration records the duration of an HTTP request.
func (m *metrics) recordRequestDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordRequestBodySize records the size of a request body.
func (m *metrics) recordRequestBodySize(
	ctx context.Context,
	size int64,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.requestBodySize == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

// recordResponseBodySize records the size of a response body.
func (m *metrics) recordResponseBodySize(
	ctx context.Context,
	size int64,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.responseBodySize == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

// recordActiveRequestStart records a request starting.
func (m *metrics) recordActiveRequestStart(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordActiveRequestEnd records a request completing.
func (m *metrics) recordActiveRequestEnd(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))
}

// recordError records a request error.
func (m *metrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil || m.requestErrors == nil {
		return
	}
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attrs...)
	allAttrs = append(allAttrs, attribute.String("error.type", errorType))
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

// recordDispatchDuration records the duration of a logical call.
func (m *metrics) recordDispatchDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.dispatchDuration == nil {
		return
	}
	m.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordFailoverAttempt records a move to the next host after attempt
// number attempt failed.
func (m *metrics) recordFailoverAttempt(ctx context.Context, attrs []attribute.KeyValue, attempt int) {
	if m == nil || m.failoverAttempts == nil {
		return
	}
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attrs...)
	allAttrs = append(allAttrs, attribute.Int("rqlite.attempt", attempt))
	m.failoverAttempts.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

// recordFailoverExhausted records a call that ran out of hosts.
func (m *metrics) recordFailoverExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.failoverExhausted == nil {
		return
	}
	m.failoverExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordRedirect records one followed redirect.
func (m *metrics) recordRedirect(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.redirects == nil {
		return
	}
	m.redirects.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordRateLimited records a call rejected by the rate limiter.
func (m *metrics) recordRateLimited(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordBreakerRequest records a breaker outcome: success, failure or rejected.
func (m *metrics) recordBreakerRequest(ctx context.Context, name, outcome string) {
	if m == nil || m.breakerRequests == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rqlite.breaker", name),
		attribute.String("outcome", outcome),
	))
}

// recordBreakerState records the new state of a node breaker.
func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("rqlite.breaker", name),
	))
}
