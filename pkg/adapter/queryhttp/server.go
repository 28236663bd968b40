// Package queryhttp is the HTTP front door of a query node.
//
// A Server binds a TCP port and, for every accepted connection, builds a
// dedicated ConnectionHandler wired to the node's shared query runner and
// identity. Handlers never share state with each other; a failing or
// panicking connection is logged and does not affect the listener.
//
// Typical use:
//
//	srv := queryhttp.New(logFactory, runner, nodeID)
//	task, err := srv.Serve(8000, 8001)
//	if err != nil {
//	    return err // *ServeError with Kind BindFailure
//	}
//	go task.Run(ctx)
package queryhttp

import (
	"fmt"
	"net"
	"strconv"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/metrics"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
)

const (
	// ComponentName tags every record logged by the server and its handlers.
	ComponentName = "QueryServer"

	// LogIndex is the sink index of the server's records.
	LogIndex = "query-server-logs"
)

// Server holds what every connection of a query endpoint shares: the
// component logger, the query runner and the node identity.
//
// Thread safety:
// A Server is immutable after New. Serve may be called any number of times,
// concurrently, each call producing an independent listener.
type Server struct {
	logger         *logger.Logger
	runner         query.Runner
	nodeID         node.ID
	handlerFactory HandlerFactory
	serviceConfig  ServiceConfig
	metrics        metrics.QueryMetrics
	maxConnections int
	acceptRate     float64
	acceptBurst    int
}

// Option customizes a Server.
type Option func(*Server)

// WithHandlerFactory replaces the default Service with a custom handler.
func WithHandlerFactory(f HandlerFactory) Option {
	return func(s *Server) {
		s.handlerFactory = f
	}
}

// WithServiceConfig tunes the default Service. Ignored when a custom handler
// factory is installed.
func WithServiceConfig(cfg ServiceConfig) Option {
	return func(s *Server) {
		s.serviceConfig = cfg
	}
}

// WithMetrics records connection and query metrics.
func WithMetrics(m metrics.QueryMetrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMaxConnections caps concurrently served connections. When the cap is
// reached, accepting pauses until a connection closes. 0 means unlimited.
func WithMaxConnections(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxConnections = n
		}
	}
}

// WithAcceptRate limits how fast new connections are accepted.
// perSecond <= 0 means unlimited.
func WithAcceptRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.acceptRate = perSecond
		s.acceptBurst = burst
	}
}

// New creates a Server. It performs no I/O and cannot fail.
//
// The server's logger is the "QueryServer" component logger of factory,
// routed to the "query-server-logs" sink index.
//
// Parameters:
//   - factory: Logging factory the component logger is built from
//   - runner: Query backend shared by every connection
//   - nodeID: Identity reported by every connection
//   - opts: Optional handler, metrics and admission settings
//
// Panics if factory or runner is nil.
func New(factory *logger.Factory, runner query.Runner, nodeID node.ID, opts ...Option) *Server {
	if factory == nil {
		panic("queryhttp: logger factory is required")
	}
	if runner == nil {
		panic("queryhttp: query runner is required")
	}

	s := &Server{
		logger: factory.ComponentLogger(ComponentName, &logger.ComponentConfig{
			Sink: &logger.SinkConfig{Index: LogIndex},
		}),
		runner:  runner,
		nodeID:  nodeID,
		metrics: metrics.NewNoopQueryMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.handlerFactory == nil {
		cfg := s.serviceConfig
		cfg.Metrics = s.metrics
		s.handlerFactory = NewServiceFactory(cfg)
	}

	return s
}

// Logger returns the server's component logger.
func (s *Server) Logger() *logger.Logger {
	return s.logger
}

// Serve binds 0.0.0.0:port and returns the task that serves it.
//
// Binding happens before Serve returns: a nil error means the port is held
// and connections queue in the kernel until Task.Run starts accepting them.
// Port 0 asks the operating system for a free port; Task.Port reports it.
//
// secondaryPort is passed to every handler unchanged. It designates the
// companion subscription endpoint, which this package does not serve.
//
// Returns:
//   - *Task: The bound listening task, not yet running
//   - error: *ServeError with Kind BindFailure if the port cannot be bound
func (s *Server) Serve(port, secondaryPort uint16) (*Task, error) {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(port)))

	listener, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, &ServeError{Kind: BindFailure, Port: port, Err: err}
	}

	task := newTask(s, listener, secondaryPort)

	s.logger.Info("Starting query HTTP server",
		"address", fmt.Sprintf("http://localhost:%d", task.Port()))

	return task, nil
}
