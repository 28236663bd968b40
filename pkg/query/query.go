// Package query defines the query model shared by the HTTP front door and
// the execution backend.
package query

import (
	"context"
	"errors"
)

// ErrEmptyDocument is returned when a query has no selections to run.
var ErrEmptyDocument = errors.New("query document is empty")

// Query is a single request to the backend.
type Query struct {
	Document      string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Result is the outcome of running a Query.
//
// Data holds one entry per selection. A selection that could not be resolved
// is present with a nil value and described by an entry in Errors.
type Result struct {
	Data   map[string]any `json:"data"`
	Errors []Error        `json:"errors,omitempty"`
}

// Error describes a failure scoped to part of a query.
type Error struct {
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

// Runner executes queries.
//
// A Runner is shared by every connection of a node and must be safe for
// concurrent use. RunQuery returns an error only when the query could not be
// executed at all; failures of individual selections are reported in
// Result.Errors.
type Runner interface {
	RunQuery(ctx context.Context, q *Query) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, q *Query) (*Result, error)

func (f RunnerFunc) RunQuery(ctx context.Context, q *Query) (*Result, error) {
	return f(ctx, q)
}
