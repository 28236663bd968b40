package queryhttp

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/adapter"
	"github.com/marmos91/dittoquery/pkg/metrics"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
)

// Adapter runs a query Server under the node server's lifecycle.
//
// Serve binds, accepts until ctx is cancelled, then drains within the
// configured shutdown timeout. If the listening task dies while ctx is still
// live, Serve returns ErrServerDown so the node shuts down instead of
// running without a front door.
type Adapter struct {
	config Config
	server *Server

	mu   sync.Mutex
	task *Task
}

var _ adapter.Adapter = (*Adapter)(nil)

// NewAdapter builds an adapter. config zero values take defaults.
//
// Panics if config is invalid, or if factory or runner is nil.
func NewAdapter(config Config, factory *logger.Factory, runner query.Runner, nodeID node.ID, m metrics.QueryMetrics) *Adapter {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		panic("invalid query adapter config: " + err.Error())
	}

	return &Adapter{
		config: config,
		server: New(factory, runner, nodeID,
			WithMetrics(m),
			WithMaxConnections(config.MaxConnections),
			WithAcceptRate(config.AcceptRate, config.AcceptBurst),
			WithServiceConfig(config.ServiceConfig()),
		),
	}
}

// Serve blocks until ctx is cancelled or the server fails.
//
// Returns:
//   - *ServeError if the port cannot be bound
//   - ErrServerDown if the task ended while ctx was live
//   - the drain error if in-flight connections had to be force-closed
//   - nil after a clean shutdown
func (a *Adapter) Serve(ctx context.Context) error {
	task, err := a.server.Serve(uint16(a.config.Port), uint16(a.config.SubscriptionPort))
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.task = task
	a.mu.Unlock()

	task.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	drainErr := task.Drain(drainCtx)

	if ctx.Err() == nil && task.Failed() {
		return ErrServerDown
	}
	return drainErr
}

// Stop stops accepting and drains in-flight connections until ctx expires.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	task := a.task
	a.mu.Unlock()

	if task == nil {
		return nil
	}
	return task.Drain(ctx)
}

func (a *Adapter) Protocol() string {
	return "HTTP"
}

// Port returns the bound port once serving, the configured port before.
func (a *Adapter) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.task != nil {
		return int(a.task.Port())
	}
	return a.config.Port
}

// ShutdownTimeout returns the drain budget used when Serve returns.
func (a *Adapter) ShutdownTimeout() time.Duration {
	return a.config.ShutdownTimeout
}
