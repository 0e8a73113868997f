package clustertest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Option configures a Cluster.
type Option func(*config)

type config struct {
	logger       zerolog.Logger
	username     string
	password     string
	redirectCode int
}

// WithLogger logs every request a node handles at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithBasicAuth makes every node require the given credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *config) {
		c.username = username
		c.password = password
	}
}

// WithRedirectCode sets the status followers use to point at the leader.
// Default: 301
func WithRedirectCode(code int) Option {
	return func(c *config) {
		c.redirectCode = code
	}
}

// RecordedRequest is a request as seen by a node.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Query returns the parsed query string.
func (r RecordedRequest) Query() url.Values {
	q, _ := url.ParseQuery(r.RawQuery)
	return q
}

// Cluster is a set of fake rqlite nodes sharing one statement log.
type Cluster struct {
	cfg    config
	store  *store
	nodes  []*Node
	leader atomic.Int32
}

// New starts size nodes and stops them when tb finishes. Node 0 is the
// leader.
func New(tb testing.TB, size int, opts ...Option) *Cluster {
	tb.Helper()
	if size < 1 {
		tb.Fatalf("clustertest: cluster size must be at least 1, got %d", size)
	}

	cfg := config{
		logger:       zerolog.Nop(),
		redirectCode: http.StatusMovedPermanently,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Cluster{cfg: cfg, store: newStore()}
	for i := range size {
		n := &Node{id: fmt.Sprintf("node-%d", i), cluster: c}
		n.server = httptest.NewServer(n.routes())
		c.nodes = append(c.nodes, n)
	}

	tb.Cleanup(c.Close)
	return c
}

// Hosts returns the node base URLs as a comma-delimited list, leader
// first as long as SetLeader was not called.
func (c *Cluster) Hosts() string {
	return strings.Join(c.HostList(), ",")
}

// HostList returns the node base URLs in node order.
func (c *Cluster) HostList() []string {
	hosts := make([]string, 0, len(c.nodes))
	for _, n := range c.nodes {
		hosts = append(hosts, n.URL())
	}
	return hosts
}

// Node returns node i.
func (c *Cluster) Node(i int) *Node {
	return c.nodes[i]
}

// Size returns the number of nodes.
func (c *Cluster) Size() int {
	return len(c.nodes)
}

// Leader returns the current leader.
func (c *Cluster) Leader() *Node {
	return c.nodes[c.leader.Load()]
}

// SetLeader moves leadership to node i.
func (c *Cluster) SetLeader(i int) {
	c.leader.Store(int32(i))
}

// FailStatement makes every later execution or query of sql report msg as
// a statement error.
func (c *Cluster) FailStatement(sql, msg string) {
	c.store.fail(sql, msg)
}

// Log returns every statement accepted so far.
func (c *Cluster) Log() []string {
	return c.store.entries()
}

// Close stops every node.
func (c *Cluster) Close() {
	for _, n := range c.nodes {
		n.Stop()
	}
}

// Node is one member of a Cluster.
type Node struct {
	id      string
	cluster *Cluster
	server  *httptest.Server

	mu         sync.Mutex
	requests   []RecordedRequest
	failStatus int
	stopped    bool
}

// ID returns the node id, "node-<index>".
func (n *Node) ID() string {
	return n.id
}

// URL returns the node base URL.
func (n *Node) URL() string {
	return n.server.URL
}

// Host returns the node host:port.
func (n *Node) Host() string {
	return n.server.Listener.Addr().String()
}

// IsLeader reports whether the node currently leads the cluster.
func (n *Node) IsLeader() bool {
	return n.cluster.Leader() == n
}

// Stop closes the listener. Later connections to the node are refused.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.mu.Unlock()

	n.server.Close()
}

// FailWith makes the node answer every request with status until Recover
// is called.
func (n *Node) FailWith(status int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failStatus = status
}

// Recover undoes FailWith.
func (n *Node) Recover() {
	n.FailWith(0)
}

// Requests returns the requests the node received, in order.
func (n *Node) Requests() []RecordedRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]RecordedRequest(nil), n.requests...)
}

// RequestCount returns the number of requests the node received.
func (n *Node) RequestCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.requests)
}

func (n *Node) record(r RecordedRequest) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, r)
	return n.failStatus
}

func (n *Node) routes() http.Handler {
	cfg := n.cluster.cfg

	r := chi.NewRouter()
	r.Use(requestID, logging(cfg.logger, n.id), recovery(cfg.logger), n.recordAndFail)
	if cfg.username != "" || cfg.password != "" {
		r.Use(basicAuth(cfg.username, cfg.password))
	}

	r.Get("/status", n.handleStatus)
	r.Get("/readyz", n.handleReady)
	r.Get("/db/backup", n.handleBackup)
	r.Get("/db/query", n.handleQuery)
	r.Post("/db/query", n.handleQuery)
	r.Post("/db/execute", n.handleExecute)

	return r
}
