package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ConnectionClassifier decides whether an error means the target node
// could not be reached at all, in which case the request is retried
// against the next host in the pool.
//
// Only unreachable-node errors should return true. Everything else
// (timeouts, malformed targets, protocol violations) is surfaced to the
// caller unmodified.
//
// Example - also fail over on connection resets:
//
//	client, err := httpclient.New(hosts,
//	    httpclient.WithConnectionClassifier(func(err error) bool {
//	        return httpclient.IsConnectionError(err) ||
//	            errors.Is(err, syscall.ECONNRESET)
//	    }),
//	)
type ConnectionClassifier func(err error) bool

// IsConnectionError reports whether err is a refused connection or an
// unresolvable host.
//
// Returns true for:
//   - ECONNREFUSED from dial
//   - DNS lookups that report the host does not exist
//   - an open (or saturated half-open) circuit breaker for the node
//
// Returns false for:
//   - nil
//   - context cancellation and deadlines, including per-attempt timeouts
//   - temporary DNS failures and DNS timeouts
//   - anything else
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts are never failed over
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	return containsConnectionPattern(err)
}

// containsConnectionPattern is a fallback for errors that lost their type
// on the way up, e.g. from third-party transports.
func containsConnectionPattern(err error) bool {
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"no such host",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// Error types reported in the error.type attribute of spans and metrics.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeCircuitOpen       = "circuit_open"
	ErrorTypeEOF               = "eof"
	ErrorTypeUnknown           = "unknown"
)

// classifyError returns an error.type classification for the given error.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrorTypeCircuitOpen
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ErrorTypeConnectionReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorTypeEOF
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNSError
	}

	var tlsRecordErr *tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &tlsRecordErr) || errors.As(err, &certErr) {
		return ErrorTypeTLSError
	}

	// Fallback for errors that lost their type
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(errStr, "connection refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(errStr, "connection reset"):
		return ErrorTypeConnectionReset
	case strings.Contains(errStr, "no such host"):
		return ErrorTypeDNSError
	case strings.Contains(errStr, "tls"), strings.Contains(errStr, "x509"):
		return ErrorTypeTLSError
	}

	return ErrorTypeUnknown
}
