package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/rqlite-go/httpclient"
)

// =============================================================================
// Config - Transport and Failover Configuration
// =============================================================================

// Config holds the transport and failover parameters.
// Use DefaultConfig() to get a properly initialized configuration,
// then modify specific fields as needed.
//
// Example:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 5 * time.Second
//	cfg.MaxRedirects = 3
//
//	client, err := httpclient.New("http://node1:4001,http://node2:4001",
//	    httpclient.WithConfig(cfg),
//	)
type Config struct {
	// =======================================================================
	// Timeouts
	// =======================================================================

	// Timeout bounds a single attempt against one host, including reading
	// the response body for buffered requests. For streaming requests it
	// bounds the wait for response headers only.
	//
	// A timed out attempt is never retried against another host.
	// A Timeout of zero means no timeout.
	//
	// Default: 30s
	Timeout time.Duration

	// DialTimeout is the maximum time to wait for a TCP connection.
	// Keep this well below Timeout so refused or unroutable nodes are
	// detected quickly and the next host can be tried.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive specifies the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// TLSHandshakeTimeout is the maximum time to wait for a TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout is the time to wait for response headers
	// after the request is fully written. Zero means no extra limit.
	//
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// =======================================================================
	// Connection Pool Settings (Transport)
	// =======================================================================

	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections across all cluster nodes.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections kept for
	// each node.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits idle plus active connections per node.
	// Zero means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// DisableKeepAlives forces a new connection for each request.
	//
	// Default: false
	DisableKeepAlives bool

	// DisableCompression disables transparent gzip negotiation.
	//
	// Default: false (rqlite nodes honour Accept-Encoding)
	DisableCompression bool

	// =======================================================================
	// Failover and Redirects
	// =======================================================================

	// MaxRedirects caps how many 301/302 responses a buffered request
	// follows, and how many redirects a streaming request may take.
	// Exceeding it yields a *RedirectLoopError. Zero or less returns
	// redirect responses to the caller without following them.
	//
	// Default: 10
	MaxRedirects int

	// FailoverDelay is the pause before retrying a request against the next
	// host after a connection-level failure.
	//
	// Default: 0 (immediate)
	FailoverDelay time.Duration
}

// DefaultTimeout is the default per-attempt timeout.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRedirects is the default redirect cap.
const DefaultMaxRedirects = 10

// DefaultConfig returns a balanced configuration suitable for most clusters.
func DefaultConfig() Config {
	return Config{
		Timeout:               DefaultTimeout,
		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 0,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		DisableKeepAlives:  false,
		DisableCompression: false,

		MaxRedirects:  DefaultMaxRedirects,
		FailoverDelay: 0,
	}
}

// LowLatencyConfig returns a configuration that fails fast so that a dead
// node is abandoned quickly in favour of the next one.
//
// Key differences from DefaultConfig:
//   - 5s attempt timeout, 1s dial timeout
//   - 3s response header timeout
//   - at most 3 redirects
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.DialTimeout = 1 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.MaxIdleConnsPerHost = 25
	cfg.IdleConnTimeout = 60 * time.Second
	cfg.MaxRedirects = 3
	return cfg
}

// HighThroughputConfig returns a configuration for clients issuing many
// concurrent calls against the cluster.
//
// Key differences from DefaultConfig:
//   - larger connection pool per node
//   - longer idle connection lifetime
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 0
	cfg.IdleConnTimeout = 120 * time.Second
	return cfg
}

// ConservativeConfig returns a resource-conscious configuration with a
// short pause between failover attempts.
//
// Key differences from DefaultConfig:
//   - smaller connection pool
//   - 250ms FailoverDelay
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 5
	cfg.MaxConnsPerHost = 20
	cfg.IdleConnTimeout = 30 * time.Second
	cfg.FailoverDelay = 250 * time.Millisecond
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds all configuration for the client.
type internalConfig struct {
	httpConfig Config

	// OpenTelemetry

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics
	Propagators    propagation.TextMapPropagator

	// ServiceName identifies the client in traces, metrics and breaker names.
	ServiceName string

	// Transport

	TLSConfig *tls.Config
	Transport http.RoundTripper

	// Request defaults

	DefaultHeaders http.Header

	// Host pool

	RoundRobin *bool

	// Failover

	ConnectionClassifier ConnectionClassifier

	// Resilience

	BreakerConfig *BreakerConfig
	RateLimit     *RateLimitConfig

	// Logging

	Logger       zerolog.Logger
	Debug        bool
	GenerateCurl bool
}

// defaultLogger is used when no logger is supplied.
var defaultLogger = zerolog.New(os.Stderr).With().
	Timestamp().
	Str("component", "rqlite-httpclient").
	Logger()

// newConfig creates an internalConfig with defaults applied.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
		Propagators: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		DefaultHeaders:       make(http.Header),
		ConnectionClassifier: IsConnectionError,
		Logger:               defaultLogger,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Metric creation only fails on invalid instrument definitions; the
	// client keeps working without metrics in that case.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates an http.Transport from the configuration.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       hc.MaxConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		DisableKeepAlives:     hc.DisableKeepAlives,
		DisableCompression:    hc.DisableCompression,
		TLSClientConfig:       cfg.TLSConfig,
	}
}

// baseTransport returns the injected transport or builds one.
func (cfg *internalConfig) baseTransport() http.RoundTripper {
	if cfg.Transport != nil {
		return cfg.Transport
	}
	return cfg.buildTransport()
}

// baseAttributes returns common attributes for all metrics and spans.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options
// =============================================================================

// Option configures the client.
type Option func(*internalConfig)

// WithConfig replaces the transport and failover configuration.
//
// Example:
//
//	client, err := httpclient.New(hosts,
//	    httpclient.WithConfig(httpclient.LowLatencyConfig()),
//	)
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithTimeout overrides the per-attempt timeout of the current Config.
func WithTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.Timeout = d
	}
}

// WithMaxRedirects overrides the redirect cap of the current Config.
func WithMaxRedirects(n int) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.MaxRedirects = n
	}
}

// WithFailoverDelay overrides the pause between failover attempts.
func WithFailoverDelay(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.FailoverDelay = d
	}
}

// WithServiceName sets the logical name used in spans, metrics and
// circuit breaker names.
//
// Example:
//
//	client, err := httpclient.New(hosts,
//	    httpclient.WithServiceName("orders-rqlite"),
//	)
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets the propagators used to inject trace context into
// outgoing requests. Defaults to W3C TraceContext and Baggage.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithTLSConfig sets the TLS configuration of the built-in transport.
// It has no effect when WithTransport is used.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithTransport replaces the built-in http.Transport.
// Instrumentation and the circuit breaker still wrap it.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = rt
	}
}

// WithDefaultHeaders sets headers applied to every request. Request
// headers take precedence.
//
// Example:
//
//	client, err := httpclient.New(hosts,
//	    httpclient.WithDefaultHeaders(map[string]string{
//	        "User-Agent": "orders/1.4",
//	    }),
//	)
func WithDefaultHeaders(headers map[string]string) Option {
	return func(cfg *internalConfig) {
		for k, v := range headers {
			cfg.DefaultHeaders.Set(k, v)
		}
	}
}

// WithRoundRobin controls whether Pool().Advance() moves the active host.
//
// Default: true
func WithRoundRobin(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.RoundRobin = &enabled
	}
}

// WithConnectionClassifier replaces the rule deciding which errors move a
// request on to the next host. Defaults to IsConnectionError.
func WithConnectionClassifier(c ConnectionClassifier) Option {
	return func(cfg *internalConfig) {
		if c != nil {
			cfg.ConnectionClassifier = c
		}
	}
}

// WithBreakerConfig enables a circuit breaker per cluster node.
// Requests to a node whose breaker is open fail immediately and are moved
// on to the next host like a refused connection.
//
// Example:
//
//	client, err := httpclient.New(hosts,
//	    httpclient.WithBreakerConfig(httpclient.DefaultBreakerConfig()),
//	)
func WithBreakerConfig(c BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &c
	}
}

// WithRateLimit limits the rate of logical calls made by the client.
// Failover attempts and redirects of one call share a single token.
func WithRateLimit(c RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &c
	}
}

// WithLogger sets the zerolog logger used for failover and debug output.
//
// Example:
//
//	client, err := httpclient.New(hosts,
//	    httpclient.WithLogger(log.With().Str("db", "orders").Logger()),
//	)
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithDebug logs every attempt's request and response at debug level.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithGenerateCurl records an equivalent cURL command on each buffered
// Response, see Response.CurlCommand.
func WithGenerateCurl(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.GenerateCurl = enabled
	}
}
