package httpclient

import (
	"errors"
	"fmt"
)

// ErrMissingURI is returned when a request has no target URI.
var ErrMissingURI = errors.New("httpclient: request URI is required")

// RedirectLoopError is returned when a request is redirected more than
// Config.MaxRedirects times.
type RedirectLoopError struct {
	// Max is the redirect cap that was exceeded.
	Max int

	// Location is the last redirect target that was not followed.
	Location string
}

// Error implements error.
func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("httpclient: stopped after %d redirects, next location %q", e.Max, e.Location)
}
