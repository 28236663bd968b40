package queryhttp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/query"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testLogs struct {
	factory *logger.Factory
	out     *syncBuffer
	sink    *syncBuffer
}

func newTestLogs(t *testing.T) *testLogs {
	t.Helper()
	logs := &testLogs{out: &syncBuffer{}, sink: &syncBuffer{}}
	f, err := logger.NewFactory(logger.Config{
		Level:      "DEBUG",
		Format:     "text",
		Writer:     logs.out,
		SinkWriter: logs.sink,
	})
	require.NoError(t, err)
	logs.factory = f
	return logs
}

// countLines returns how many log lines contain every one of parts.
func countLines(s string, parts ...string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		match := true
		for _, p := range parts {
			if !strings.Contains(line, p) {
				match = false
				break
			}
		}
		if match && line != "" {
			n++
		}
	}
	return n
}

// echoRunner answers every query with its own document.
type echoRunner struct {
	name string
}

func (r *echoRunner) RunQuery(_ context.Context, q *query.Query) (*query.Result, error) {
	return &query.Result{Data: map[string]any{"echo": q.Document}}, nil
}

var okRunner = &echoRunner{name: "ok"}

func dial(t *testing.T, port uint16) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp4", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// startTask binds an ephemeral port and runs the task until the test ends.
func startTask(t *testing.T, srv *Server, secondaryPort uint16) *Task {
	t.Helper()
	task, err := srv.Serve(0, secondaryPort)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go task.Run(ctx)

	t.Cleanup(func() {
		cancel()
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer drainCancel()
		_ = task.Drain(drainCtx)
	})
	return task
}

// recordingMetrics counts the calls the tests care about.
type recordingMetrics struct {
	mu          sync.Mutex
	accepted    int
	closed      int
	failed      map[string]int
	forceClosed int
	throttled   int
	queries     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{failed: map[string]int{}, queries: map[string]int{}}
}

func (m *recordingMetrics) RecordConnectionAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted++
}

func (m *recordingMetrics) RecordConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *recordingMetrics) RecordConnectionFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[reason]++
}

func (m *recordingMetrics) RecordConnectionsForceClosed(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceClosed += count
}

func (m *recordingMetrics) SetActiveConnections(int32) {}

func (m *recordingMetrics) RecordAcceptThrottled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttled++
}

func (m *recordingMetrics) RecordQuery(status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[status]++
}

type metricsSnapshot struct {
	accepted    int
	closed      int
	failed      map[string]int
	forceClosed int
	throttled   int
	queries     map[string]int
}

func (m *recordingMetrics) snapshot() metricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	failed := map[string]int{}
	for k, v := range m.failed {
		failed[k] = v
	}
	queries := map[string]int{}
	for k, v := range m.queries {
		queries[k] = v
	}
	return metricsSnapshot{
		accepted:    m.accepted,
		closed:      m.closed,
		failed:      failed,
		forceClosed: m.forceClosed,
		throttled:   m.throttled,
		queries:     queries,
	}
}
