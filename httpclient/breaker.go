package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore creates a SharedDataStore backed by Redis so that every
// process talking to the same cluster shares breaker state per node.
//
// Usage:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client, err := httpclient.New(hosts,
//	    httpclient.WithBreakerConfig(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
//	)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker guards requests to one cluster node.
// It matches the gobreaker.CircuitBreaker signature.
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// BreakerClassifier reports whether one exchange with a node counts against
// that node's breaker.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig configures the per-node circuit breakers.
//
// Every host of the pool gets its own breaker, named "<service>:<host:port>".
// While a node's breaker is open, requests to it fail fast with
// gobreaker.ErrOpenState and the failover loop moves on to the next host,
// exactly as if the node had refused the connection.
//
// A node that lost its leader keeps accepting connections but answers 503
// until an election completes. The breaker is what takes such a node out of
// rotation; connection-level failover alone never would.
type BreakerConfig struct {
	// MaxRequests is how many probes may reach a half-open node.
	// If 0, gobreaker allows 1.
	MaxRequests uint32

	// Interval clears a closed breaker's counts periodically.
	// If 0, counts are only cleared on state changes.
	Interval time.Duration

	// Timeout is how long a node stays skipped before it is probed again.
	// It should cover a leader election. If 0, gobreaker uses 60s.
	Timeout time.Duration

	// FailureThreshold is the number of requests a node must have served in
	// the current interval before FailureRatio is considered.
	FailureThreshold uint32

	// FailureRatio opens the breaker once this share of requests failed.
	FailureRatio float64

	// ConsecutiveFailures opens the breaker after this many failures in a
	// row, regardless of traffic. 0 disables the rule.
	ConsecutiveFailures uint32

	// Store shares breaker state between processes (see NewRedisStore).
	// If nil, state is local to the client.
	Store gobreaker.SharedDataStore

	// Classifier decides which outcomes count as node failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is called with the breaker name when a node's breaker
	// changes state.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns a local breaker configuration sized for a
// small rqlite cluster.
//
// Defaults:
//   - MaxRequests: 1
//   - Interval: 30s
//   - Timeout: 5s (a few election timeouts)
//   - FailureThreshold: 10
//   - FailureRatio: 0.5
//   - ConsecutiveFailures: 3
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            30 * time.Second,
		Timeout:             5 * time.Second,
		FailureThreshold:    10,
		FailureRatio:        0.5,
		ConsecutiveFailures: 3,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig with its state kept
// in store, so a node skipped by one process is skipped by all of them.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DisabledBreakerConfig returns a configuration whose breakers never open.
func DisabledBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: ^uint32(0),
		FailureRatio:     1.0,
		Classifier:       func(_ *http.Response, _ error) bool { return false },
	}
}

// DefaultBreakerClassifier counts a node as failing when it cannot be
// reached or reports that it cannot serve:
//   - network errors (refused, reset, timed out)
//   - 503, sent by a node without a leader or not yet ready
//   - 502 and 504, sent by a proxy in front of an unreachable node
//
// Other statuses, 500 included, describe the request rather than the node.
// A 500 from rqlite is a failed statement on a healthy node.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return resp != nil && IsNodeUnavailable(resp.StatusCode)
}

// IsNodeUnavailable reports whether status means the node answering it
// cannot serve requests right now.
func IsNodeUnavailable(status int) bool {
	switch status {
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isNetworkError reports whether err says something about the node.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// Callers giving up say nothing about the node.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
