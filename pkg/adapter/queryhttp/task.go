package queryhttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/internal/ratelimiter"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Task is a bound listener and the accept loop that serves it.
//
// Lifecycle:
//  1. Server.Serve binds the port and returns the Task
//  2. Run accepts connections until it is stopped or accepting fails
//  3. Drain waits for in-flight connections and force-closes them when its
//     context expires
//
// Stop and Drain may be called from any goroutine at any time.
type Task struct {
	server        *Server
	logger        *logger.Logger
	listener      net.Listener
	secondaryPort uint16

	limiter       *ratelimiter.Limiter
	connSemaphore chan struct{}

	// activeConns counts connection goroutines, for Drain.
	activeConns sync.WaitGroup

	// connCount mirrors activeConns for reporting.
	connCount atomic.Int32

	// activeConnections maps connection ids to live connections, for
	// force-closing them when a drain times out.
	activeConnections sync.Map
	nextConnID        atomic.Uint64

	// draining is closed when Drain starts. Handlers then stop keeping
	// connections alive and end them once in-flight requests complete.
	draining  chan struct{}
	drainOnce sync.Once

	// requestCtx is handed to every handler. It is cancelled only when a
	// drain gives up, so Stop never interrupts in-flight requests.
	requestCtx     context.Context
	cancelRequests context.CancelFunc

	running  atomic.Bool
	failed   atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func newTask(s *Server, listener net.Listener, secondaryPort uint16) *Task {
	requestCtx, cancelRequests := context.WithCancel(context.Background())

	t := &Task{
		server:         s,
		logger:         s.logger,
		listener:       listener,
		secondaryPort:  secondaryPort,
		limiter:        ratelimiter.New(s.acceptRate, s.acceptBurst),
		draining:       make(chan struct{}),
		requestCtx:     requestCtx,
		cancelRequests: cancelRequests,
		stopped:        make(chan struct{}),
		done:           make(chan struct{}),
	}
	if s.maxConnections > 0 {
		t.connSemaphore = make(chan struct{}, s.maxConnections)
	}

	return t
}

// Addr returns the bound address.
func (t *Task) Addr() net.Addr {
	return t.listener.Addr()
}

// Port returns the bound port, which differs from the requested one when
// port 0 was requested.
func (t *Task) Port() uint16 {
	if addr, ok := t.listener.Addr().(*net.TCPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// ActiveConnections returns the number of connections being served.
func (t *Task) ActiveConnections() int32 {
	return t.connCount.Load()
}

// Failed reports whether Run ended because accepting failed irrecoverably.
func (t *Task) Failed() bool {
	return t.failed.Load()
}

// Done is closed when Run returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Run accepts connections until ctx is cancelled or Stop is called.
//
// Each connection gets its own goroutine and its own handler from the
// server's HandlerFactory. Errors and panics of a connection are logged and
// never stop the loop. Temporary accept errors are retried with exponential
// backoff. An irrecoverable accept error is logged as "Server error" and
// ends Run; it is not returned.
//
// Run does not wait for in-flight connections; see Drain. Calling Run more
// than once is a no-op.
func (t *Task) Run(ctx context.Context) {
	if !t.running.CompareAndSwap(false, true) {
		t.logger.Warn("Query server task is already running")
		return
	}
	defer close(t.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-runCtx.Done():
		case <-t.stopped:
		}
		t.Stop()
		cancel()
	}()

	if !t.limiter.Unlimited() {
		t.logger.Debug("Accept rate limit active",
			"rate", t.server.acceptRate, "burst", t.server.acceptBurst)
	}

	var backoff time.Duration

	for {
		if t.connSemaphore != nil {
			select {
			case t.connSemaphore <- struct{}{}:
			case <-runCtx.Done():
				return
			}
		}

		if !t.limiter.TryAdmit() {
			t.server.metrics.RecordAcceptThrottled()
			t.logger.Debug("Accept throttled", "tokens", t.limiter.Available())
			if err := t.limiter.Admit(runCtx); err != nil {
				t.releaseSlot()
				return
			}
		}

		conn, err := t.listener.Accept()
		if err != nil {
			t.releaseSlot()

			if t.isStopped() || runCtx.Err() != nil {
				return
			}

			if isTemporary(err) {
				if backoff == 0 {
					backoff = minAcceptBackoff
				} else {
					backoff = min(backoff*2, maxAcceptBackoff)
				}
				t.logger.Warn("Temporary accept error", "error", err, "retry_in", backoff)

				select {
				case <-time.After(backoff):
				case <-runCtx.Done():
					return
				}
				continue
			}

			t.failed.Store(true)
			t.logger.Error("Server error", "error", err)
			return
		}
		backoff = 0

		t.track(conn)
	}
}

func (t *Task) track(conn net.Conn) {
	id := t.nextConnID.Add(1)

	t.activeConns.Add(1)
	t.activeConnections.Store(id, conn)
	active := t.connCount.Add(1)

	t.server.metrics.RecordConnectionAccepted()
	t.server.metrics.SetActiveConnections(active)
	t.logger.Debug("Connection accepted", "remote", conn.RemoteAddr().String(), "active", active)

	go t.serveConn(id, conn)
}

// serveConn builds the connection's handler and runs it. Panics from the
// factory or the handler are contained here.
func (t *Task) serveConn(id uint64, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	connLogger := t.logger.With("remote", remote)

	defer func() {
		if r := recover(); r != nil {
			t.server.metrics.RecordConnectionFailed("panic")
			connLogger.Error("Server error", "error", fmt.Sprintf("panic: %v", r))
		}
		_ = conn.Close()

		t.activeConnections.Delete(id)
		active := t.connCount.Add(-1)
		t.releaseSlot()
		t.activeConns.Done()

		t.server.metrics.RecordConnectionClosed()
		t.server.metrics.SetActiveConnections(active)
		t.logger.Debug("Connection closed", "remote", remote, "active", active)
	}()

	handler := t.server.handlerFactory(HandlerParams{
		Logger:        connLogger,
		Runner:        t.server.runner,
		SecondaryPort: t.secondaryPort,
		NodeID:        t.server.nodeID,
		Draining:      t.draining,
	})

	if err := handler.ServeConn(t.requestCtx, conn); err != nil {
		t.server.metrics.RecordConnectionFailed("error")
		connLogger.Error("Server error", "error", err)
	}
}

func (t *Task) releaseSlot() {
	if t.connSemaphore != nil {
		<-t.connSemaphore
	}
}

// Stop closes the listener. Connections already accepted keep being served.
// Safe to call more than once.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.logger.Debug("Error closing listener", "error", err)
		}
	})
}

func (t *Task) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Drain stops accepting, asks handlers to end their connections and waits
// for them to finish. Idle keep-alive connections close right away;
// connections with a request in flight close once it has been answered.
//
// If ctx expires first, the request context handed to handlers is
// cancelled, every remaining connection is closed, and the context error is
// returned (wrapped).
func (t *Task) Drain(ctx context.Context) error {
	t.Stop()
	t.drainOnce.Do(func() { close(t.draining) })

	// Run must be out of Accept before activeConns can be waited on.
	if t.running.Load() {
		select {
		case <-t.done:
		case <-ctx.Done():
			return t.forceClose(ctx)
		}
	}

	active := t.connCount.Load()
	if active > 0 {
		t.logger.Info("Draining connections", "active", active)
	}

	drained := make(chan struct{})
	go func() {
		t.activeConns.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		t.cancelRequests()
		return nil
	case <-ctx.Done():
		return t.forceClose(ctx)
	}
}

func (t *Task) forceClose(ctx context.Context) error {
	t.cancelRequests()

	closed := 0
	t.activeConnections.Range(func(_, value any) bool {
		if err := value.(net.Conn).Close(); err == nil {
			closed++
		}
		return true
	})

	t.server.metrics.RecordConnectionsForceClosed(closed)
	t.logger.Warn("Drain timeout exceeded, connections force-closed", "closed", closed)

	return fmt.Errorf("drain: %d connection(s) force-closed: %w", closed, ctx.Err())
}

// isTemporary reports whether an accept error is worth retrying.
func isTemporary(err error) bool {
	if errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
