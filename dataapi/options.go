package dataapi

import (
	"time"

	"github.com/kroma-labs/rqlite-go/httpclient"
)

// Level is the read consistency level of a query.
type Level string

const (
	// LevelNone lets any node answer from its local copy.
	LevelNone Level = "none"

	// LevelWeak has the node check that it is the leader before answering.
	LevelWeak Level = "weak"

	// LevelStrong sends the query through the consensus log.
	LevelStrong Level = "strong"
)

// Option configures a single data API call.
type Option func(*callOptions)

type callOptions struct {
	level       Level
	pretty      bool
	timings     bool
	transaction bool
	raw         bool
	useLeader   bool
	hostIndex   *int
	retries     *int
	timeout     time.Duration
}

func newCallOptions(useLeader bool, opts []Option) *callOptions {
	o := &callOptions{useLeader: useLeader}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLevel sets the read consistency level. Without it the node default
// applies and no level parameter is sent.
func WithLevel(l Level) Option {
	return func(o *callOptions) {
		o.level = l
	}
}

// WithPretty asks the node to indent its JSON answer.
func WithPretty() Option {
	return func(o *callOptions) {
		o.pretty = true
	}
}

// WithTimings asks the node to report execution time per statement.
func WithTimings() Option {
	return func(o *callOptions) {
		o.timings = true
	}
}

// WithTransaction runs all statements of the call in one transaction.
func WithTransaction() Option {
	return func(o *callOptions) {
		o.transaction = true
	}
}

// WithRaw skips decoding. The returned Results only carries the response.
func WithRaw() Option {
	return func(o *callOptions) {
		o.raw = true
	}
}

// WithUseLeader controls whether the first attempt goes to the leader.
// Execute defaults to true, Query to false.
func WithUseLeader(enabled bool) Option {
	return func(o *callOptions) {
		o.useLeader = enabled
	}
}

// OnHost pins the first attempt to pool index i.
func OnHost(i int) Option {
	return func(o *callOptions) {
		o.hostIndex = &i
	}
}

// WithRetries caps how many other hosts are tried after a connection
// failure.
func WithRetries(n int) Option {
	return func(o *callOptions) {
		o.retries = &n
	}
}

// WithTimeout overrides the client's per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// apply copies the options onto rb.
func (o *callOptions) apply(rb *httpclient.RequestBuilder) *httpclient.RequestBuilder {
	if o.level != "" {
		rb.Query("level", string(o.level))
	}
	if o.pretty {
		rb.Query("pretty", "true")
	}
	if o.timings {
		rb.Query("timings", "true")
	}
	if o.transaction {
		rb.Query("transaction", "true")
	}
	if o.useLeader {
		rb.UseLeader()
	}
	if o.hostIndex != nil {
		rb.OnHost(*o.hostIndex)
	}
	if o.retries != nil {
		rb.Retries(*o.retries)
	}
	if o.timeout != 0 {
		rb.Timeout(o.timeout)
	}
	return rb
}
