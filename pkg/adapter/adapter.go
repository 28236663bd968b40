// Package adapter defines the lifecycle contract between the node server and
// the network front ends it runs.
package adapter

import "context"

// Adapter is a network front end managed by the node server.
//
// All adapters of a node share the node's query runner and identity; they
// receive them at construction.
//
// Lifecycle:
//  1. Creation: the adapter is built from its configuration section
//  2. Startup: Serve binds and blocks until shutdown
//  3. Shutdown: Stop drains in-flight work within the caller's deadline
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop may be called
// concurrently with Serve.
type Adapter interface {
	// Serve starts the front end and blocks until ctx is cancelled or the
	// front end fails.
	//
	// When ctx is cancelled, Serve stops accepting, waits for in-flight work
	// with a bounded timeout and returns. If Serve returns while ctx is
	// still live, the node server treats it as fatal and stops every other
	// adapter.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails, the front end dies, or draining timed out
	Serve(ctx context.Context) error

	// Stop stops accepting and drains in-flight work until ctx expires.
	//
	// Implementations must be idempotent and safe to call before Serve has
	// bound anything.
	Stop(ctx context.Context) error

	// Protocol returns a constant human-readable name for logging, e.g. "HTTP".
	Protocol() string

	// Port returns the listening port: the bound one while serving, the
	// configured one otherwise.
	Port() int
}
