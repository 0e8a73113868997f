package clustertest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"syscall"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noRedirect returns redirects to the test instead of following them.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func do(t *testing.T, method, target string, body string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, target, r)
	require.NoError(t, err)

	resp, err := noRedirect.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeResults(t *testing.T, data []byte) resultsBody {
	t.Helper()
	var body resultsBody
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestNew(t *testing.T) {
	c := New(t, 3)

	assert.Equal(t, 3, c.Size())
	assert.Len(t, c.HostList(), 3)
	assert.Equal(t, strings.Join(c.HostList(), ","), c.Hosts())
	assert.Same(t, c.Node(0), c.Leader())
	assert.True(t, c.Node(0).IsLeader())
	assert.False(t, c.Node(1).IsLeader())
	assert.Equal(t, "node-2", c.Node(2).ID())
}

func TestCluster_Execute(t *testing.T) {
	tests := []struct {
		name           string
		node           int
		query          string
		body           string
		wantStatus     int
		wantLocation   bool
		wantResults    []Result
		wantLog        []string
		failStatements map[string]string
	}{
		{
			name:       "given the leader, then statements are applied",
			node:       0,
			body:       `["CREATE TABLE foo (id integer not null primary key, name text)", "INSERT INTO foo(name) VALUES('fiona')"]`,
			wantStatus: http.StatusOK,
			wantResults: []Result{
				{LastInsertID: 1, RowsAffected: 1},
				{LastInsertID: 2, RowsAffected: 1},
			},
			wantLog: []string{
				"CREATE TABLE foo (id integer not null primary key, name text)",
				"INSERT INTO foo(name) VALUES('fiona')",
			},
		},
		{
			name:       "given parameterized statements, then the SQL is applied",
			node:       0,
			body:       `[["INSERT INTO foo(name) VALUES(?)", "fiona"]]`,
			wantStatus: http.StatusOK,
			wantResults: []Result{
				{LastInsertID: 1, RowsAffected: 1},
			},
			wantLog: []string{"INSERT INTO foo(name) VALUES(?)"},
		},
		{
			name:         "given a follower, then redirects to the leader",
			node:         1,
			query:        "?timings",
			body:         `["INSERT INTO foo(name) VALUES('fiona')"]`,
			wantStatus:   http.StatusMovedPermanently,
			wantLocation: true,
		},
		{
			name:           "given a failing statement, then its error is reported in place",
			node:           0,
			body:           `["INSERT INTO foo(name) VALUES('fiona')", "INSERT INTO nope VALUES(1)"]`,
			failStatements: map[string]string{"INSERT INTO nope VALUES(1)": "no such table: nope"},
			wantStatus:     http.StatusOK,
			wantResults: []Result{
				{LastInsertID: 1, RowsAffected: 1},
				{Error: "no such table: nope"},
			},
			wantLog: []string{"INSERT INTO foo(name) VALUES('fiona')"},
		},
		{
			name:           "given a failing statement in a transaction, then nothing is applied",
			node:           0,
			query:          "?transaction",
			body:           `["INSERT INTO foo(name) VALUES('fiona')", "INSERT INTO nope VALUES(1)"]`,
			failStatements: map[string]string{"INSERT INTO nope VALUES(1)": "no such table: nope"},
			wantStatus:     http.StatusOK,
			wantResults: []Result{
				{},
				{Error: "no such table: nope"},
			},
		},
		{
			name:       "given an invalid body, then bad request",
			node:       0,
			body:       `{"not":"an array"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(t, 3)
			for sql, msg := range tt.failStatements {
				c.FailStatement(sql, msg)
			}

			target := c.Node(tt.node).URL() + "/db/execute" + tt.query
			resp, data := do(t, http.MethodPost, target, tt.body)

			require.Equal(t, tt.wantStatus, resp.StatusCode, string(data))

			if tt.wantLocation {
				assert.Equal(t, c.Leader().URL()+"/db/execute"+tt.query, resp.Header.Get("Location"))
				assert.Empty(t, c.Log())
				return
			}
			if tt.wantResults != nil {
				assert.Equal(t, tt.wantResults, decodeResults(t, data).Results)
			}
			assert.Equal(t, tt.wantLog, c.Log())
		})
	}
}

func TestCluster_Query(t *testing.T) {
	tests := []struct {
		name       string
		node       int
		method     string
		query      url.Values
		body       string
		wantStatus int
		wantRows   int
		wantCount  int
	}{
		{
			name:       "given a GET on the leader, then the log is returned",
			node:       0,
			method:     http.MethodGet,
			query:      url.Values{"q": {"SELECT * FROM foo"}},
			wantStatus: http.StatusOK,
			wantRows:   2,
			wantCount:  1,
		},
		{
			name:       "given a POST with several statements, then one result each",
			node:       0,
			method:     http.MethodPost,
			query:      url.Values{"level": {"strong"}},
			body:       `["SELECT * FROM foo", "SELECT * FROM bar"]`,
			wantStatus: http.StatusOK,
			wantRows:   2,
			wantCount:  2,
		},
		{
			name:       "given a follower and level none, then served locally",
			node:       1,
			method:     http.MethodGet,
			query:      url.Values{"q": {"SELECT * FROM foo"}, "level": {"none"}},
			wantStatus: http.StatusOK,
			wantRows:   2,
			wantCount:  1,
		},
		{
			name:       "given a follower and the default level, then redirected",
			node:       1,
			method:     http.MethodGet,
			query:      url.Values{"q": {"SELECT * FROM foo"}},
			wantStatus: http.StatusMovedPermanently,
		},
		{
			name:       "given a follower and level strong, then redirected",
			node:       2,
			method:     http.MethodGet,
			query:      url.Values{"q": {"SELECT * FROM foo"}, "level": {"strong"}},
			wantStatus: http.StatusMovedPermanently,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(t, 3)
			c.store.execute([]string{"CREATE TABLE foo (id integer)", "INSERT INTO foo VALUES(1)"}, false)

			target := c.Node(tt.node).URL() + "/db/query?" + tt.query.Encode()
			resp, data := do(t, tt.method, target, tt.body)

			require.Equal(t, tt.wantStatus, resp.StatusCode, string(data))
			if tt.wantStatus != http.StatusOK {
				assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), c.Leader().URL()+"/db/query?"))
				return
			}

			results := decodeResults(t, data).Results
			require.Len(t, results, tt.wantCount)
			for _, res := range results {
				assert.Equal(t, []string{"id", "sql"}, res.Columns)
				assert.Len(t, res.Values, tt.wantRows)
			}
		})
	}
}

func TestCluster_Timings(t *testing.T) {
	c := New(t, 1)

	_, data := do(t, http.MethodGet, c.Node(0).URL()+"/db/query?q=SELECT+1&timings", "")

	body := decodeResults(t, data)
	require.Len(t, body.Results, 1)
	assert.Positive(t, body.Time)
}

func TestCluster_Pretty(t *testing.T) {
	c := New(t, 1)

	_, data := do(t, http.MethodGet, c.Node(0).URL()+"/db/query?q=SELECT+1&pretty", "")

	assert.Contains(t, string(data), "\n    ")
}

func TestCluster_SetLeader(t *testing.T) {
	c := New(t, 3)

	c.SetLeader(2)

	assert.Same(t, c.Node(2), c.Leader())

	resp, _ := do(t, http.MethodPost, c.Node(0).URL()+"/db/execute", `["INSERT INTO foo VALUES(1)"]`)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, c.Node(2).URL()+"/db/execute", resp.Header.Get("Location"))

	_, data := do(t, http.MethodGet, c.Node(1).URL()+"/status", "")
	var status statusBody
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "node-1", status.Store.NodeID)
	assert.Equal(t, "node-2", status.Store.Leader.NodeID)
	assert.Equal(t, c.Node(2).Host(), status.Store.Leader.Addr)
	assert.Equal(t, "Follower", status.Store.Raft.State)
}

func TestCluster_RedirectCode(t *testing.T) {
	c := New(t, 2, WithRedirectCode(http.StatusFound))

	resp, _ := do(t, http.MethodPost, c.Node(1).URL()+"/db/execute", `["INSERT INTO foo VALUES(1)"]`)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestNode_Stop(t *testing.T) {
	c := New(t, 2)

	c.Node(0).Stop()
	c.Node(0).Stop()

	_, err := http.Get(c.Node(0).URL() + "/status")
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.ECONNREFUSED), err.Error())

	resp, _ := do(t, http.MethodGet, c.Node(1).URL()+"/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNode_FailWith(t *testing.T) {
	c := New(t, 1)

	c.Node(0).FailWith(http.StatusServiceUnavailable)
	resp, data := do(t, http.MethodGet, c.Node(0).URL()+"/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"error":"node unavailable"}`, string(data))

	c.Node(0).Recover()
	resp, _ = do(t, http.MethodGet, c.Node(0).URL()+"/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 2, c.Node(0).RequestCount())
}

func TestNode_Requests(t *testing.T) {
	c := New(t, 1)

	req, err := http.NewRequest(http.MethodPost, c.Node(0).URL()+"/db/execute?timings", bytes.NewBufferString(`["INSERT INTO foo VALUES(1)"]`))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "call-1")

	resp, err := noRedirect.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "call-1", resp.Header.Get("X-Request-ID"))

	requests := c.Node(0).Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "/db/execute", requests[0].Path)
	assert.True(t, requests[0].Query().Has("timings"))
	assert.Equal(t, "call-1", requests[0].Header.Get("X-Request-ID"))
	assert.JSONEq(t, `["INSERT INTO foo VALUES(1)"]`, string(requests[0].Body))
}

func TestCluster_BasicAuth(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		pass       string
		wantStatus int
	}{
		{name: "given valid credentials, then served", user: "bob", pass: "secret", wantStatus: http.StatusOK},
		{name: "given a wrong password, then unauthorized", user: "bob", pass: "nope", wantStatus: http.StatusUnauthorized},
		{name: "given no credentials, then unauthorized", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(t, 1, WithBasicAuth("bob", "secret"))

			req, err := http.NewRequest(http.MethodGet, c.Node(0).URL()+"/status", nil)
			require.NoError(t, err)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, 1, c.Node(0).RequestCount())
		})
	}
}

func TestCluster_Backup(t *testing.T) {
	c := New(t, 2)
	c.store.execute([]string{"CREATE TABLE foo (id integer)"}, false)

	resp, data := do(t, http.MethodGet, c.Node(0).URL()+"/db/backup", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, backupHeader+"CREATE TABLE foo (id integer)\n", string(data))

	resp, _ = do(t, http.MethodGet, c.Node(1).URL()+"/db/backup", "")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
}

func TestRecovery(t *testing.T) {
	h := recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
