package httpclient

import (
	"io"
	"net/http"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// refusedError is a refused dial that remembers which node refused.
type refusedError struct {
	host string
}

func (e *refusedError) Error() string { return "dial tcp " + e.host + ": connect: connection refused" }
func (e *refusedError) Unwrap() error { return syscall.ECONNREFUSED }

func newTestClient(t *testing.T, hosts any, mt *MockTransport, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{
		WithMockTransport(mt),
		WithLogger(zerolog.Nop()),
	}, opts...)

	client, err := New(hosts, opts...)
	require.NoError(t, err)
	return client
}

func readBody(t *testing.T, req *http.Request) string {
	t.Helper()

	if req.Body == nil {
		return ""
	}
	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	return string(data)
}
