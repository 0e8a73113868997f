package httpclient

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/rqlite-go/hostpool"
)

// Client is a leader-aware HTTP client for an rqlite cluster, with fluent
// request building, OpenTelemetry instrumentation and host failover.
//
// Create a Client using New():
//
//	client, err := httpclient.New("http://node1:4001,http://node2:4001",
//	    httpclient.WithServiceName("orders"),
//	)
//
//	resp, err := client.Request("Query").
//	    Query("q", "SELECT * FROM foo").
//	    Get(ctx, "/db/query")
type Client struct {
	// pool holds the cluster nodes. Its cursor is only moved by the caller.
	pool *hostpool.Pool

	// httpClient sends buffered requests. Redirects are returned, not
	// followed, so the redirect follower keeps control.
	httpClient *http.Client

	// streamClient sends streaming requests and follows redirects itself.
	streamClient *http.Client

	// config holds all client configuration.
	config *internalConfig

	// defaultHeaders are applied to all requests.
	defaultHeaders http.Header

	// limiter is nil unless WithRateLimit was used.
	limiter *rate.Limiter

	logger zerolog.Logger
}

// HTTP returns the underlying *http.Client used for buffered requests.
//
// Use this when you need to pass the instrumented transport to a library
// expecting *http.Client. Requests made through it bypass the host pool.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// Pool returns the host pool the client routes relative URIs through.
//
// Example - rotate reads to the next node:
//
//	client.Pool().Advance()
func (c *Client) Pool() *hostpool.Pool {
	return c.pool
}

// Request creates a new RequestBuilder for the given operation name.
//
// The operation name is used for:
//   - OpenTelemetry span naming (e.g., "rqlite Query")
//   - Log correlation
//
// Example:
//
//	resp, err := client.Request("Execute").
//	    BodyJSON([]string{"INSERT INTO foo(name) VALUES('fiona')"}).
//	    UseLeader().
//	    Post(ctx, "/db/execute")
func (c *Client) Request(operationName string) *RequestBuilder {
	return &RequestBuilder{
		client: c,
		desc: Descriptor{
			Operation: operationName,
			Header:    make(http.Header),
			Query:     make(map[string][]string),
		},
	}
}

// Get dispatches d as a GET request, whatever its Method says.
func (c *Client) Get(ctx context.Context, d Descriptor) (*Response, error) {
	d.Method = http.MethodGet
	return c.Dispatch(ctx, d)
}

// Post dispatches d as a POST request, whatever its Method says.
func (c *Client) Post(ctx context.Context, d Descriptor) (*Response, error) {
	d.Method = http.MethodPost
	return c.Dispatch(ctx, d)
}

// Stream dispatches d in streaming mode. See Descriptor.Stream.
func (c *Client) Stream(ctx context.Context, d Descriptor) (*Response, error) {
	d.Stream = true
	return c.Dispatch(ctx, d)
}

// New creates a Client for the given hosts with production-ready defaults
// and OpenTelemetry instrumentation.
//
// hosts is a comma-delimited string or a []string of base URLs. The first
// host is treated as the leader. An empty list returns a
// *hostpool.ConfigurationError.
//
// The client includes:
//   - Connection pooling and timeouts
//   - OpenTelemetry tracing and metrics
//   - Failover to the next host on refused connections
//   - Fluent request builder via Request()
//
// Example - Basic usage:
//
//	client, err := httpclient.New("http://localhost:4001,http://localhost:4003")
//	if err != nil {
//	    return err
//	}
//
// Example - With failover tuning:
//
//	client, err := httpclient.New(hosts,
//	    httpclient.WithConfig(httpclient.LowLatencyConfig()),
//	    httpclient.WithFailoverDelay(100*time.Millisecond),
//	)
func New(hosts any, opts ...Option) (*Client, error) {
	cfg := newConfig(opts...)

	var poolOpts []hostpool.Option
	if cfg.RoundRobin != nil {
		poolOpts = append(poolOpts, hostpool.WithRoundRobin(*cfg.RoundRobin))
	}

	pool, err := hostpool.New(hosts, poolOpts...)
	if err != nil {
		return nil, err
	}

	return newClient(pool, cfg), nil
}

// NewWithPool creates a Client sharing an existing host pool. Advancing the
// pool affects every client built on it.
//
// WithRoundRobin is ignored; configure the pool directly instead.
func NewWithPool(pool *hostpool.Pool, opts ...Option) *Client {
	return newClient(pool, newConfig(opts...))
}

func newClient(pool *hostpool.Pool, cfg *internalConfig) *Client {
	withBreaker := newCircuitBreakerTransport(cfg.baseTransport(), cfg)
	instrumented := newOtelTransport(withBreaker, cfg)

	c := &Client{
		pool:           pool,
		config:         cfg,
		defaultHeaders: cfg.DefaultHeaders,
		limiter:        newLimiter(cfg.RateLimit),
		logger:         cfg.Logger,
	}

	// Attempt timeouts are applied per request through the context.
	c.httpClient = &http.Client{
		Transport: instrumented,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	c.streamClient = &http.Client{
		Transport:     instrumented,
		CheckRedirect: c.checkStreamRedirect,
	}

	return c
}
