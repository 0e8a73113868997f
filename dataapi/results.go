package dataapi

import (
	"github.com/kroma-labs/rqlite-go/httpclient"
)

// Result is the outcome of one statement.
type Result struct {
	Columns      []string `json:"columns,omitempty"`
	Types        []string `json:"types,omitempty"`
	Values       [][]any  `json:"values,omitempty"`
	LastInsertID int64    `json:"last_insert_id,omitempty"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	Error        string   `json:"error,omitempty"`

	// Time is the execution time in seconds, present with WithTimings.
	Time float64 `json:"time,omitempty"`
}

// Rows returns Values as one map per row keyed by column name.
func (r Result) Rows() []map[string]any {
	rows := make([]map[string]any, 0, len(r.Values))
	for _, values := range r.Values {
		row := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Results is the body of a /db/query or /db/execute answer.
type Results struct {
	Results []Result `json:"results"`

	// Error is set when the whole request failed, e.g. a rolled back
	// transaction.
	Error string `json:"error,omitempty"`

	// Time is the total time in seconds, present with WithTimings.
	Time float64 `json:"time,omitempty"`

	response *httpclient.Response
}

// Response returns the HTTP response the results were read from.
func (r *Results) Response() *httpclient.Response {
	return r.response
}

// FirstError returns the first statement error as a *StatementError, or
// nil when every statement succeeded.
func (r *Results) FirstError() error {
	if r.Error != "" {
		return &StatementError{Index: -1, Message: r.Error}
	}
	for i, res := range r.Results {
		if res.Error != "" {
			return &StatementError{Index: i, Message: res.Error}
		}
	}
	return nil
}

// RowsAffected sums rows_affected over all statements.
func (r *Results) RowsAffected() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.RowsAffected
	}
	return n
}

// LastInsertID returns the last non-zero last_insert_id.
func (r *Results) LastInsertID() int64 {
	for i := len(r.Results) - 1; i >= 0; i-- {
		if id := r.Results[i].LastInsertID; id != 0 {
			return id
		}
	}
	return 0
}
