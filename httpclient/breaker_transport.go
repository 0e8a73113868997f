package httpclient

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/sony/gobreaker/v2"
)

// circuitBreakerTransport is a RoundTripper that keeps one circuit breaker
// per cluster node, keyed by the request's host:port.
type circuitBreakerTransport struct {
	next       http.RoundTripper
	classifier BreakerClassifier
	cfg        *internalConfig

	// newBreaker builds the breaker for a node on first use.
	newBreaker func(name string) CircuitBreaker

	mu       sync.Mutex
	breakers map[string]CircuitBreaker
}

// errSyntheticFailure is a sentinel error used to signal the circuit breaker
// that a request failed (e.g. 503 status) even if the underlying RoundTrip returned no error.
// It is intercepted and unwrapped by the transport before returning to the caller.
var errSyntheticFailure = errors.New("synthetic failure")

// unclassifiedError carries a transport error the classifier did not count
// as a node failure. The breaker excludes it from its counts.
type unclassifiedError struct {
	err error
}

func (e *unclassifiedError) Error() string { return e.err.Error() }
func (e *unclassifiedError) Unwrap() error { return e.err }

func isUnclassified(err error) bool {
	var u *unclassifiedError
	return errors.As(err, &u)
}

// RoundTrip implements http.RoundTripper.
func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	name := t.breakerName(req.URL.Host)
	breaker := t.breaker(name)

	res, err := breaker.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose

		if t.classifier(resp, err) {
			if err != nil {
				return resp, err
			}
			return resp, errSyntheticFailure
		}

		if err != nil {
			return resp, &unclassifiedError{err: err}
		}
		return resp, nil
	})

	var unclassified *unclassifiedError
	if errors.As(err, &unclassified) {
		return nil, unclassified.err
	}

	if err != nil {
		// Differentiate between "Circuit Open" rejection and "Actual Failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			t.cfg.Metrics.recordBreakerRequest(ctx, name, "rejected")
			t.cfg.Logger.Debug().
				Str("breaker", name).
				Msg("circuit open; node skipped")
		} else {
			// This is a failure that passed through the breaker but failed execution
			t.cfg.Metrics.recordBreakerRequest(ctx, name, "failure")
		}

		// Unwrap synthetic failure
		if errors.Is(err, errSyntheticFailure) {
			if resp, ok := res.(*http.Response); ok {
				return resp, nil
			}
		}

		return nil, err
	}

	t.cfg.Metrics.recordBreakerRequest(ctx, name, "success")

	if resp, ok := res.(*http.Response); ok {
		return resp, nil
	}

	return nil, errors.New("circuit breaker returned unknown response type")
}

// breakerName identifies the breaker of one node.
func (t *circuitBreakerTransport) breakerName(host string) string {
	// If no ServiceName provided, fallback to "rqlite".
	service := t.cfg.ServiceName
	if service == "" {
		service = "rqlite"
	}
	return service + ":" + host
}

// breaker returns the breaker for name, creating it on first use.
func (t *circuitBreakerTransport) breaker(name string) CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[name]; ok {
		return cb
	}

	cb := t.newBreaker(name)
	t.breakers[name] = cb
	return cb
}

// newCircuitBreakerTransport creates a new circuit breaker transport.
// It returns next unchanged when no breaker is configured.
func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}

	classifier := cfg.BreakerConfig.Classifier
	if classifier == nil {
		classifier = DefaultBreakerClassifier
	}

	return &circuitBreakerTransport{
		next:       next,
		classifier: classifier,
		cfg:        cfg,
		breakers:   make(map[string]CircuitBreaker),
		newBreaker: func(name string) CircuitBreaker {
			return buildBreaker(name, cfg)
		},
	}
}

// buildBreaker creates a local or distributed gobreaker for one node.
func buildBreaker(name string, cfg *internalConfig) CircuitBreaker {
	bc := cfg.BreakerConfig

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if bc.ConsecutiveFailures > 0 &&
				counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
				return true
			}
			if bc.FailureThreshold > 0 && counts.Requests < bc.FailureThreshold {
				return false
			}
			if bc.FailureRatio > 0 && counts.TotalFailures > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				if ratio >= bc.FailureRatio {
					return true
				}
			}
			return false
		},
		IsExcluded: isUnclassified,
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			cfg.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	if bc.Store == nil {
		return gobreaker.NewCircuitBreaker[interface{}](st)
	}

	dcb, err := gobreaker.NewDistributedCircuitBreaker[interface{}](bc.Store, st)
	if err != nil {
		// Keep a local breaker for this node when the shared one cannot be built.
		cfg.Logger.Error().Err(err).
			Str("breaker", name).
			Msg("distributed circuit breaker unavailable; using local state")
		return gobreaker.NewCircuitBreaker[interface{}](st)
	}
	return dcb
}
