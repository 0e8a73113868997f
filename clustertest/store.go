package clustertest

import (
	"sync"
)

// Result mirrors one entry of an rqlite "results" array.
type Result struct {
	Columns      []string `json:"columns,omitempty"`
	Types        []string `json:"types,omitempty"`
	Values       [][]any  `json:"values,omitempty"`
	LastInsertID int64    `json:"last_insert_id,omitempty"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	Error        string   `json:"error,omitempty"`
	Time         float64  `json:"time,omitempty"`
}

// store is the statement log shared by every node of a cluster.
type store struct {
	mu       sync.RWMutex
	log      []string
	failures map[string]string
}

func newStore() *store {
	return &store{failures: make(map[string]string)}
}

// fail makes every later occurrence of sql answer with msg.
func (s *store) fail(sql, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[sql] = msg
}

func (s *store) entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.log...)
}

// execute appends stmts to the log. Inside a transaction nothing is applied
// once a statement fails.
func (s *store) execute(stmts []string, transaction bool) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transaction {
		for i, stmt := range stmts {
			if msg, ok := s.failures[stmt]; ok {
				results := make([]Result, i+1)
				results[i] = Result{Error: msg}
				return results
			}
		}
	}

	results := make([]Result, 0, len(stmts))
	for _, stmt := range stmts {
		if msg, ok := s.failures[stmt]; ok {
			results = append(results, Result{Error: msg})
			continue
		}
		s.log = append(s.log, stmt)
		results = append(results, Result{
			LastInsertID: int64(len(s.log)),
			RowsAffected: 1,
		})
	}
	return results
}

// query answers each statement with the current log.
func (s *store) query(stmts []string) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(stmts))
	for _, stmt := range stmts {
		if msg, ok := s.failures[stmt]; ok {
			results = append(results, Result{Error: msg})
			continue
		}

		values := make([][]any, 0, len(s.log))
		for i, entry := range s.log {
			values = append(values, []any{i + 1, entry})
		}
		results = append(results, Result{
			Columns: []string{"id", "sql"},
			Types:   []string{"integer", "text"},
			Values:  values,
		})
	}
	return results
}
