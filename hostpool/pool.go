package hostpool

import (
	"strings"
	"sync"
)

// Separator splits a single host string into individual hosts.
const Separator = ","

// Pool is an ordered list of base addresses (scheme://host:port) plus the
// index of the currently active host.
//
// Index 0 is the leader. The active index is only changed through
// SetActiveIndex and Advance; callers that fail over between hosts for a
// single request keep their own cursor and never write it back here.
type Pool struct {
	mu          sync.RWMutex
	hosts       []string
	activeIndex int
	roundRobin  bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithRoundRobin controls whether Advance moves the active index.
//
// Default: true
func WithRoundRobin(enabled bool) Option {
	return func(p *Pool) {
		p.roundRobin = enabled
	}
}

// New creates a Pool from either a []string or a comma-delimited string.
//
// Trailing slashes are stripped from every host. A source that resolves to
// no hosts yields a *ConfigurationError.
//
// Example:
//
//	pool, err := hostpool.New([]string{"http://a:4001/", "http://b:4001"})
//	pool.List() // ["http://a:4001", "http://b:4001"]
func New(source any, opts ...Option) (*Pool, error) {
	p := &Pool{roundRobin: true}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.SetHosts(source); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse splits a comma-delimited host string and normalizes each entry.
// Empty entries are dropped.
func Parse(source string) []string {
	return normalize(strings.Split(source, Separator))
}

func normalize(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		h = strings.TrimSuffix(h, "/")
		if h == "" {
			continue
		}
		out = append(out, h)
	}
	return out
}

// SetHosts replaces the pool contents. The active index is clamped into the
// new range. On error the pool is left untouched.
func (p *Pool) SetHosts(source any) error {
	var hosts []string
	switch s := source.(type) {
	case string:
		hosts = Parse(s)
	case []string:
		hosts = normalize(s)
	default:
		return &ConfigurationError{Source: source, Reason: "expected a string or []string"}
	}

	if len(hosts) == 0 {
		return &ConfigurationError{Source: source, Reason: "at least one host must be provided"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.hosts = hosts
	p.activeIndex = clamp(p.activeIndex, len(hosts))
	return nil
}

// List returns a copy of the hosts in pool order.
func (p *Pool) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.hosts...)
}

// Size returns the number of hosts.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.hosts)
}

// Host returns the host at index i, wrapping around the ring.
func (p *Pool) Host(i int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.hosts)
	return p.hosts[((i%n)+n)%n]
}

// ActiveHost returns the leader when useLeader is true, otherwise the host
// at the active index.
func (p *Pool) ActiveHost(useLeader bool) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if useLeader {
		return p.hosts[0]
	}
	return p.hosts[p.activeIndex]
}

// ActiveIndex returns 0 when useLeader is true, otherwise the active index.
func (p *Pool) ActiveIndex(useLeader bool) int {
	if useLeader {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeIndex
}

// SetActiveIndex sets the active index, clamping out of range values to the
// nearest valid index.
func (p *Pool) SetActiveIndex(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeIndex = clamp(i, len(p.hosts))
}

// Advance moves the active index to the next host, wrapping to 0 after the
// last one. It does nothing when round robin is disabled or the pool holds
// a single host.
func (p *Pool) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.roundRobin || len(p.hosts) <= 1 {
		return
	}
	p.activeIndex = (p.activeIndex + 1) % len(p.hosts)
}

// SetRoundRobin enables or disables Advance.
func (p *Pool) SetRoundRobin(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roundRobin = enabled
}

// RoundRobin reports whether Advance moves the active index.
func (p *Pool) RoundRobin() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roundRobin
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
