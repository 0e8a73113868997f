package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"github.com/kroma-labs/rqlite-go/hostpool"
)

// BasicAuth holds credentials sent with a request.
type BasicAuth struct {
	Username string
	Password string
}

// Descriptor describes one logical call. It is consumed by Client.Dispatch.
//
// URI may be absolute (http://node:4001/db/query), in which case the host
// pool is bypassed, or relative (/db/query), in which case it is joined to
// the selected host.
type Descriptor struct {
	// Operation names the call in spans and logs, e.g. "Query".
	Operation string

	// Method is passed through as-is. Empty means GET.
	Method string

	// URI is the absolute or host-relative target. Required.
	URI string

	// Header is merged over the client's default headers.
	Header http.Header

	// Query is appended to the URI of the first request only; it is not
	// carried across redirects.
	Query url.Values

	// Body is replayed verbatim on every attempt and redirect.
	Body []byte

	// Auth overrides credentials embedded in the host URL.
	Auth *BasicAuth

	// Timeout bounds each attempt. Zero uses Config.Timeout, a negative
	// value disables the timeout.
	Timeout time.Duration

	// UseLeader targets the first host of the pool for the first attempt.
	UseLeader bool

	// Stream returns the live response instead of buffering it. Streaming
	// requests are never failed over to another host.
	Stream bool

	// HostIndex pins the first attempt to a pool index, overriding
	// UseLeader and the pool cursor.
	HostIndex *int

	// Retries is the failover budget. Nil means pool size - 1.
	Retries *int
}

// dispatchMode selects between the buffered and streaming code paths.
type dispatchMode int

const (
	modeBuffered dispatchMode = iota
	modeStream
)

func (d Descriptor) mode() dispatchMode {
	if d.Stream {
		return modeStream
	}
	return modeBuffered
}

func (d Descriptor) method() string {
	if d.Method == "" {
		return http.MethodGet
	}
	return d.Method
}

// startIndex returns the pool index of the first attempt. The pool cursor
// is read, never written.
func (d Descriptor) startIndex(pool *hostpool.Pool) int {
	if d.HostIndex != nil {
		n := pool.Size()
		return ((*d.HostIndex % n) + n) % n
	}
	return pool.ActiveIndex(d.UseLeader)
}

// retryBudget returns how many additional hosts may be tried.
func (d Descriptor) retryBudget(poolSize int) int {
	if d.Retries != nil {
		return max(*d.Retries, 0)
	}
	return poolSize - 1
}

// timeout resolves the per-attempt timeout against the client default.
func (d Descriptor) timeout(def time.Duration) time.Duration {
	switch {
	case d.Timeout < 0:
		return 0
	case d.Timeout == 0:
		return def
	default:
		return d.Timeout
	}
}
