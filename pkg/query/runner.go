package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/dittoquery/pkg/store/index"
)

// IndexRunner resolves queries against a key/value index.
//
// Each selection of the document names a key; the value stored under that
// key must be JSON and is returned decoded under the selection's alias.
//
// Thread safety:
// IndexRunner holds no mutable state and is safe for concurrent use as long
// as the index is.
type IndexRunner struct {
	idx index.Index
}

// NewIndexRunner returns a Runner backed by idx.
//
// Panics if idx is nil.
func NewIndexRunner(idx index.Index) *IndexRunner {
	if idx == nil {
		panic("index runner requires an index")
	}
	return &IndexRunner{idx: idx}
}

// RunQuery parses q and resolves every selection.
//
// Returns ErrEmptyDocument for documents without selections and an error if
// ctx is cancelled or the index fails. Malformed documents, unknown
// variables and missing keys are reported in Result.Errors.
func (r *IndexRunner) RunQuery(ctx context.Context, q *Query) (*Result, error) {
	if q == nil {
		return nil, ErrEmptyDocument
	}

	doc, err := parse(q.Document)
	if err != nil {
		var syntaxErr *SyntaxError
		if errors.As(err, &syntaxErr) {
			return &Result{Errors: []Error{{Message: syntaxErr.Error()}}}, nil
		}
		return nil, err
	}

	if q.OperationName != "" && doc.name != "" && q.OperationName != doc.name {
		return &Result{Errors: []Error{{
			Message: fmt.Sprintf("unknown operation %q", q.OperationName),
		}}}, nil
	}

	result := &Result{Data: make(map[string]any, len(doc.selections))}

	for _, sel := range doc.selections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key, qerr := resolveKey(sel, q.Variables)
		if qerr != nil {
			result.Data[sel.alias] = nil
			result.Errors = append(result.Errors, *qerr)
			continue
		}

		raw, err := r.idx.Get(ctx, key)
		if errors.Is(err, index.ErrNotFound) {
			result.Data[sel.alias] = nil
			result.Errors = append(result.Errors, Error{Message: "entity not found", Path: []string{sel.alias}})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", key, err)
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			result.Data[sel.alias] = nil
			result.Errors = append(result.Errors, Error{Message: "entity is not valid JSON", Path: []string{sel.alias}})
			continue
		}
		result.Data[sel.alias] = value
	}

	return result, nil
}

func resolveKey(sel selection, vars map[string]any) (string, *Error) {
	if !strings.HasPrefix(sel.key, "$") {
		return sel.key, nil
	}

	name := strings.TrimPrefix(sel.key, "$")
	v, ok := vars[name]
	if !ok {
		return "", &Error{Message: fmt.Sprintf("variable %q is not defined", name), Path: []string{sel.alias}}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &Error{Message: fmt.Sprintf("variable %q must be a non-empty string", name), Path: []string{sel.alias}}
	}
	return s, nil
}
