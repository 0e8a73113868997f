package dataapi

import (
	"errors"
	"fmt"
)

// ErrInvalidStatements is returned when the statements argument is not a
// string, []string or [][]any, or holds no statement.
var ErrInvalidStatements = errors.New("dataapi: statements must be a string, []string or [][]any")

// StatementError is a SQL error rqlite reported for one statement.
type StatementError struct {
	// Index is the position of the failing statement in the request.
	Index int

	// Message is the error text returned by the node.
	Message string
}

// Error implements error.
func (e *StatementError) Error() string {
	return fmt.Sprintf("dataapi: statement %d: %s", e.Index, e.Message)
}

// StatusError is returned when a node answers with a non-2xx status.
type StatusError struct {
	StatusCode int

	// Message is the "error" field of the body, or the raw body when it
	// is not JSON.
	Message string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dataapi: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("dataapi: unexpected status %d: %s", e.StatusCode, e.Message)
}
