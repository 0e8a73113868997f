package httpclient

import "net/http"

// RoundTripper is the transport contract mocked in tests (see the mocks
// package).
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// Compile-time interface checks.
var (
	_ RoundTripper = (*MockTransport)(nil)
	_ RoundTripper = (*circuitBreakerTransport)(nil)
)
