package clustertest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// backupHeader is the magic string every SQLite file starts with.
const backupHeader = "SQLite format 3\x00"

type resultsBody struct {
	Results []Result `json:"results"`
	Time    float64  `json:"time,omitempty"`
}

type statusBody struct {
	Store storeStatus `json:"store"`
}

type storeStatus struct {
	NodeID string     `json:"node_id"`
	Leader leaderInfo `json:"leader"`
	Raft   raftInfo   `json:"raft"`
}

type leaderInfo struct {
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
}

type raftInfo struct {
	State string `json:"state"`
}

// recordAndFail records r and answers with the node's failure status when
// one is set.
func (n *Node) recordAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		status := n.record(RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		if status != 0 {
			writeError(w, status, "node unavailable")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// redirectToLeader answers with a redirect to the same URI on the leader
// and reports whether it did so.
func (n *Node) redirectToLeader(w http.ResponseWriter, r *http.Request) bool {
	leader := n.cluster.Leader()
	if leader == n {
		return false
	}

	w.Header().Set("Location", leader.URL()+r.URL.RequestURI())
	w.WriteHeader(n.cluster.cfg.redirectCode)
	return true
}

func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	leader := n.cluster.Leader()
	state := "Follower"
	if leader == n {
		state = "Leader"
	}

	writeJSON(w, http.StatusOK, statusBody{Store: storeStatus{
		NodeID: n.id,
		Leader: leaderInfo{NodeID: leader.id, Addr: leader.Host()},
		Raft:   raftInfo{State: state},
	}}, isSet(r, "pretty"))
}

func (n *Node) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "[+]node ok\n[+]leader ok\n[+]store ok\n")
}

func (n *Node) handleQuery(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	if level != "none" && n.redirectToLeader(w, r) {
		return
	}

	stmts, err := parseStatements(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	results := n.cluster.store.query(stmts)
	writeJSON(w, http.StatusOK, withTimings(r, results, start), isSet(r, "pretty"))
}

func (n *Node) handleExecute(w http.ResponseWriter, r *http.Request) {
	if n.redirectToLeader(w, r) {
		return
	}

	stmts, err := parseStatements(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	results := n.cluster.store.execute(stmts, isSet(r, "transaction"))
	writeJSON(w, http.StatusOK, withTimings(r, results, start), isSet(r, "pretty"))
}

// handleBackup streams the log after the SQLite header, flushing after
// every entry.
func (n *Node) handleBackup(w http.ResponseWriter, r *http.Request) {
	if n.redirectToLeader(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	_, _ = io.WriteString(w, backupHeader)
	for _, entry := range n.cluster.store.entries() {
		_, _ = fmt.Fprintln(w, entry)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// parseStatements reads q from the query string, or a JSON array of
// statements from the body. Parameterized statements keep only their SQL.
func parseStatements(r *http.Request) ([]string, error) {
	if q := r.URL.Query().Get("q"); q != "" {
		return []string{q}, nil
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid statements: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty statements")
	}

	stmts := make([]string, 0, len(raw))
	for _, m := range raw {
		var sql string
		if err := json.Unmarshal(m, &sql); err == nil {
			stmts = append(stmts, sql)
			continue
		}

		var parameterized []any
		if err := json.Unmarshal(m, &parameterized); err != nil || len(parameterized) == 0 {
			return nil, fmt.Errorf("invalid statement %s", m)
		}
		sql, ok := parameterized[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid statement %s", m)
		}
		stmts = append(stmts, sql)
	}
	return stmts, nil
}

func withTimings(r *http.Request, results []Result, start time.Time) resultsBody {
	body := resultsBody{Results: results}
	if isSet(r, "timings") {
		elapsed := time.Since(start).Seconds()
		body.Time = elapsed
		for i := range body.Results {
			body.Results[i].Time = elapsed
		}
	}
	return body
}

// isSet reports whether a flag parameter is present and not "false".
func isSet(r *http.Request, key string) bool {
	q := r.URL.Query()
	if !q.Has(key) {
		return false
	}
	return !strings.EqualFold(q.Get(key), "false")
}
