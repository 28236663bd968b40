// Package server runs the adapters of a query node and ties their lifetimes
// together.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/adapter"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
)

// DefaultShutdownTimeout bounds how long adapters are given to stop.
const DefaultShutdownTimeout = 30 * time.Second

// NodeServer owns the query runner and identity of a node and runs every
// registered adapter against them.
//
// If any adapter fails, or returns while the node is still supposed to be
// serving, every other adapter is stopped and Serve returns the failure.
//
// Thread safety:
// AddAdapter must be called before Serve. Serve may be called only once.
type NodeServer struct {
	runner          query.Runner
	nodeID          node.ID
	shutdownTimeout time.Duration

	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   atomic.Bool
}

// New creates a node server.
//
// Parameters:
//   - runner: Query backend shared by every adapter
//   - nodeID: Identity of this node
//   - shutdownTimeout: Budget for stopping adapters (0 uses DefaultShutdownTimeout)
//
// Panics if runner is nil.
func New(runner query.Runner, nodeID node.ID, shutdownTimeout time.Duration) *NodeServer {
	if runner == nil {
		panic("query runner cannot be nil")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	return &NodeServer{
		runner:          runner,
		nodeID:          nodeID,
		shutdownTimeout: shutdownTimeout,
		adapters:        make([]adapter.Adapter, 0, 2),
	}
}

func (s *NodeServer) Runner() query.Runner {
	return s.runner
}

func (s *NodeServer) NodeID() node.ID {
	return s.nodeID
}

// AddAdapter registers an adapter.
//
// Returns an error if another adapter already uses the same protocol or a
// fixed port. Port 0 (ephemeral) never conflicts.
//
// Panics if a is nil or Serve has already been called.
func (s *NodeServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}
	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Adapters returns a snapshot of the registered adapters.
func (s *NodeServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// adapterError carries the failure of one adapter.
type adapterError struct {
	protocol string
	err      error
}

// errAdapterExited is reported for an adapter whose Serve returned nil
// while the node was still running.
var errAdapterExited = errors.New("adapter exited unexpectedly")

// Serve runs every adapter until ctx is cancelled or one of them fails.
//
// Returns:
//   - ctx.Err() after a shutdown triggered by ctx
//   - the first adapter failure, wrapped with its protocol
//   - an error if no adapter is registered or Serve was already called
func (s *NodeServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return errors.New("serve has already been called on this server instance")
	}

	adapters := s.Adapters()
	if len(adapters) == 0 {
		return errors.New("no adapters registered")
	}

	logger.Info("Starting node %s with %d adapter(s)", s.nodeID, len(adapters))

	// Adapters run under their own context so a failure can stop them all.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			err := a.Serve(runCtx)

			switch {
			case runCtx.Err() != nil:
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("%s adapter stopped with error: %v", protocol, err)
				} else {
					logger.Debug("%s adapter stopped gracefully", protocol)
				}
			case err != nil:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			default:
				errChan <- adapterError{protocol: protocol, err: errAdapterExited}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()
	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		cancel()
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	wg.Wait()
	logger.Info("Node %s stopped", s.nodeID)

	return shutdownErr
}

// stopAllAdapters stops adapters in reverse registration order, sharing one
// shutdown budget.
func (s *NodeServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), err)
		}
	}
}
