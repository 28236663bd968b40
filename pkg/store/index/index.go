// Package index defines the key/value store the default query backend reads
// entities from.
package index

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("entity not found")

// Index is a key/value store of JSON-encoded entities.
//
// Implementations must be safe for concurrent use. Values passed to Put and
// returned by Get are owned by the caller.
type Index interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Len returns the number of stored keys.
	Len(ctx context.Context) (int, error)

	// Close releases the store's resources. The index must not be used
	// afterwards.
	Close() error
}
