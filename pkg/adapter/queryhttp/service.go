package queryhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/metrics"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
)

const (
	// QueryPath is where queries are accepted.
	QueryPath = "/query"

	// HeaderNodeID carries the node identity on every response.
	HeaderNodeID = "X-Node-Id"

	// HeaderRequestID carries a per-request identifier on every response.
	HeaderRequestID = "X-Request-Id"

	tracerName = "github.com/marmos91/dittoquery/pkg/adapter/queryhttp"
)

// ServiceConfig tunes the HTTP handling of a single connection.
type ServiceConfig struct {
	// ReadHeaderTimeout bounds reading request headers (default: 10s)
	ReadHeaderTimeout time.Duration

	// ReadTimeout bounds reading a whole request (default: 30s)
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response (default: 60s)
	WriteTimeout time.Duration

	// IdleTimeout closes keep-alive connections with no request (default: 2m)
	IdleTimeout time.Duration

	// MaxBodyBytes caps the size of a POST body (default: 1MiB)
	MaxBodyBytes int64

	// Metrics receives per-query measurements. Nil disables them.
	Metrics metrics.QueryMetrics
}

func (c *ServiceConfig) applyDefaults() {
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopQueryMetrics()
	}
}

// Service is the default ConnectionHandler: an HTTP/1.1 query endpoint bound
// to one connection.
//
// Routes:
//   - GET  /        node index (node id, query path, subscriptions URL)
//   - GET  /health  liveness
//   - GET  /query   query from URL parameters
//   - POST /query   query from a JSON body
//   - OPTIONS *     CORS preflight
//
// The subscriptions URL points at the secondary port. Nothing in this
// package listens there; it is only advertised.
type Service struct {
	logger        *logger.Logger
	runner        query.Runner
	secondaryPort uint16
	nodeID        node.ID
	draining      <-chan struct{}
	cfg           ServiceConfig
	tracer        trace.Tracer
	router        http.Handler
}

// NewService builds a Service from params. cfg zero values take defaults.
func NewService(params HandlerParams, cfg ServiceConfig) *Service {
	cfg.applyDefaults()

	s := &Service{
		logger:        params.Logger,
		runner:        params.Runner,
		secondaryPort: params.SecondaryPort,
		nodeID:        params.NodeID,
		draining:      params.Draining,
		cfg:           cfg,
		tracer:        otel.Tracer(tracerName),
	}
	s.router = s.routes()
	return s
}

func (s *Service) Logger() *logger.Logger { return s.logger }
func (s *Service) Runner() query.Runner   { return s.runner }
func (s *Service) NodeID() node.ID        { return s.nodeID }
func (s *Service) SecondaryPort() uint16  { return s.secondaryPort }

// Handler returns the service's router, for use outside ServeConn.
func (s *Service) Handler() http.Handler {
	return s.router
}

func (s *Service) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.responseHeaders)
	r.Use(cors)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get(QueryPath, s.handleQuery)
	r.Post(QueryPath, s.handleQuery)

	return r
}

// ServeConn serves HTTP requests on conn until the connection ends or ctx
// is cancelled.
//
// Once the draining channel closes, keep-alive is turned off: an idle
// connection is closed at once and a busy one after its current response.
// ServeConn does not return before that response is written.
//
// Errors reported by net/http while serving (malformed requests, handler
// panics) are logged as "Server error" on the connection logger.
func (s *Service) ServeConn(ctx context.Context, conn net.Conn) error {
	ln := newConnListener(conn)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          stdlog.New(s.logger.ErrorWriter("Server error"), "", 0),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	stop := context.AfterFunc(ctx, func() { _ = srv.Close() })
	defer stop()

	served := make(chan struct{})
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-s.draining:
			srv.SetKeepAlivesEnabled(false)
			_ = srv.Shutdown(ctx)
		case <-served:
		}
	}()

	err := srv.Serve(ln)
	close(served)

	// Serve returns as soon as Shutdown closes the listener; the connection
	// itself is finished only when Shutdown returns.
	<-shutdownDone

	if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Service) responseHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderNodeID, s.nodeID.String())
		w.Header().Set(HeaderRequestID, uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, User-Agent")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type indexResponse struct {
	NodeID        string `json:"node_id"`
	Query         string `json:"query"`
	Subscriptions string `json:"subscriptions"`
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		host = h
	}
	if host == "" {
		host = "localhost"
	}

	writeJSON(w, http.StatusOK, indexResponse{
		NodeID:        s.nodeID.String(),
		Query:         QueryPath,
		Subscriptions: fmt.Sprintf("ws://%s/", net.JoinHostPort(host, fmt.Sprint(s.secondaryPort))),
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"node_id": s.nodeID.String(),
	})
}

func (s *Service) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q, err := s.decodeQuery(w, r)
	if err != nil {
		s.cfg.Metrics.RecordQuery("bad_request", time.Since(start))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(q.Document) == "" {
		s.cfg.Metrics.RecordQuery("bad_request", time.Since(start))
		writeError(w, http.StatusBadRequest, query.ErrEmptyDocument.Error())
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "query",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("dittoquery.node_id", s.nodeID.String()),
			attribute.String("dittoquery.operation", q.OperationName),
		),
	)
	result, err := s.runner.RunQuery(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	switch {
	case errors.Is(err, query.ErrEmptyDocument):
		s.cfg.Metrics.RecordQuery("bad_request", time.Since(start))
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.cfg.Metrics.RecordQuery("error", time.Since(start))
		s.logger.Warn("Query failed",
			"error", err,
			"request_id", w.Header().Get(HeaderRequestID))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.cfg.Metrics.RecordQuery("ok", time.Since(start))
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Service) decodeQuery(w http.ResponseWriter, r *http.Request) (*query.Query, error) {
	if r.Method == http.MethodGet {
		values := r.URL.Query()
		q := &query.Query{
			Document:      values.Get("query"),
			OperationName: values.Get("operationName"),
		}
		if raw := values.Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &q.Variables); err != nil {
				return nil, fmt.Errorf("invalid variables: %w", err)
			}
		}
		return q, nil
	}

	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var q query.Query
	if err := json.NewDecoder(body).Decode(&q); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return &q, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, query.Result{Errors: []query.Error{{Message: msg}}})
}
