package framework

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/config"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
	"github.com/marmos91/dittoquery/pkg/server"
	"github.com/marmos91/dittoquery/pkg/store/index"
)

// StoreType represents the index store backing a test node
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
)

// AllStoreTypes lists every index store a suite should run against.
var AllStoreTypes = []StoreType{StoreTypeMemory, StoreTypeBadger}

// TestNodeConfig holds configuration for a test node.
// This is distinct from pkg/config.Config (application-level settings).
type TestNodeConfig struct {
	Port             int
	SubscriptionPort int
	IndexStore       StoreType
	NodeID           string
	LogLevel         string
	MaxConnections   int
	StartupTimeout   time.Duration

	// Entities are written to the index before the node starts serving
	Entities map[string]string
}

// TestNode wraps a complete query node for testing
type TestNode struct {
	t       testing.TB
	config  TestNodeConfig
	index   index.Index
	server  *server.NodeServer
	factory *logger.Factory
	logs    *syncBuffer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
	tempDir string
}

// NewTestNode creates a new test node instance
func NewTestNode(t testing.TB, cfg TestNodeConfig) *TestNode {
	t.Helper()

	if cfg.Port == 0 {
		cfg.Port = findFreePort(t)
	}
	if cfg.SubscriptionPort == 0 {
		cfg.SubscriptionPort = cfg.Port + 1
	}
	if cfg.IndexStore == "" {
		cfg.IndexStore = StoreTypeMemory
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "e2e_node"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}

	tempDir, err := os.MkdirTemp("", "dittoquery-e2e-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TestNode{
		t:       t,
		config:  cfg,
		logs:    &syncBuffer{},
		ctx:     ctx,
		cancel:  cancel,
		tempDir: tempDir,
	}
}

// Start builds the node from a pkg/config.Config and serves it in the background
func (tn *TestNode) Start() error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if tn.started {
		return fmt.Errorf("node already started")
	}

	tn.t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = tn.config.LogLevel
	cfg.Node.ID = tn.config.NodeID
	cfg.Index.Type = string(tn.config.IndexStore)
	cfg.Index.Badger = map[string]any{
		"db_path":             filepath.Join(tn.tempDir, "index"),
		"block_cache_size_mb": int64(8),
		"index_cache_size_mb": int64(8),
	}
	cfg.Adapters.Query.Port = tn.config.Port
	cfg.Adapters.Query.SubscriptionPort = tn.config.SubscriptionPort
	cfg.Adapters.Query.MaxConnections = tn.config.MaxConnections
	cfg.Adapters.Query.ShutdownTimeout = 5 * time.Second
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid test node config: %w", err)
	}

	// Console output is discarded; the sink keeps the component records
	// so tests can inspect them.
	factory, err := logger.NewFactory(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     "json",
		Writer:     io.Discard,
		SinkWriter: tn.logs,
	})
	if err != nil {
		return err
	}
	tn.factory = factory

	tn.index, err = config.CreateIndex(tn.ctx, &cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to create %s index: %w", cfg.Index.Type, err)
	}
	for key, value := range tn.config.Entities {
		if err := tn.index.Put(tn.ctx, key, []byte(value)); err != nil {
			return fmt.Errorf("failed to seed %q: %w", key, err)
		}
	}
	tn.t.Logf("Using %s index with %d entities", cfg.Index.Type, len(tn.config.Entities))

	runner := query.NewIndexRunner(tn.index)
	tn.server = server.New(runner, node.ID(cfg.Node.ID), cfg.Server.ShutdownTimeout)
	for _, a := range config.CreateAdapters(cfg, factory, runner, nil) {
		if err := tn.server.AddAdapter(a); err != nil {
			return err
		}
	}

	tn.wg.Add(1)
	go func() {
		defer tn.wg.Done()
		if err := tn.server.Serve(tn.ctx); err != nil && err != context.Canceled {
			tn.t.Logf("Node error: %v", err)
		}
	}()

	tn.t.Logf("Waiting for node to start on port %d...", tn.config.Port)
	if err := tn.waitForNode(); err != nil {
		tn.cancel()
		tn.wg.Wait()
		return fmt.Errorf("node failed to start: %w", err)
	}

	tn.started = true
	tn.t.Logf("Node started successfully on port %d", tn.config.Port)
	return nil
}

// Stop stops the test node and cleans up resources
func (tn *TestNode) Stop() error {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	if !tn.started {
		return nil
	}

	tn.t.Helper()
	tn.t.Logf("Stopping node...")

	tn.cancel()

	done := make(chan struct{})
	go func() {
		tn.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		tn.t.Logf("Node stopped gracefully")
	case <-time.After(10 * time.Second):
		tn.t.Logf("Node stop timeout - forcing shutdown")
	}

	if tn.index != nil {
		_ = tn.index.Close()
	}
	if tn.factory != nil {
		_ = tn.factory.Close()
	}
	if tn.tempDir != "" {
		if err := os.RemoveAll(tn.tempDir); err != nil {
			tn.t.Logf("Warning: failed to remove temp directory %s: %v", tn.tempDir, err)
		}
	}

	tn.started = false
	return nil
}

// Port returns the query port
func (tn *TestNode) Port() int {
	return tn.config.Port
}

// SubscriptionPort returns the advertised subscription port
func (tn *TestNode) SubscriptionPort() int {
	return tn.config.SubscriptionPort
}

// NodeID returns the node identity
func (tn *TestNode) NodeID() string {
	return tn.config.NodeID
}

// URL returns the base URL of the query endpoint
func (tn *TestNode) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", tn.config.Port)
}

// Index returns the index the node resolves queries against
func (tn *TestNode) Index() index.Index {
	return tn.index
}

// SinkLogs returns the JSON records written to the structured log sink
func (tn *TestNode) SinkLogs() string {
	return tn.logs.String()
}

// waitForNode waits for the node to accept connections
func (tn *TestNode) waitForNode() error {
	deadline := time.Now().Add(tn.config.StartupTimeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", tn.config.Port), 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for node to start")
}

// findFreePort finds an available port whose successor is also free, so
// the subscription port can default to port+1.
func findFreePort(t testing.TB) int {
	t.Helper()
	for attempt := 0; attempt < 20; attempt++ {
		listener, err := net.Listen("tcp4", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Failed to find free port: %v", err)
		}
		port := listener.Addr().(*net.TCPAddr).Port
		_ = listener.Close()

		next, err := net.Listen("tcp4", fmt.Sprintf("127.0.0.1:%d", port+1))
		if err != nil {
			continue
		}
		_ = next.Close()
		return port
	}
	t.Fatalf("Failed to find a pair of free ports")
	return 0
}

// syncBuffer collects sink records written from many connections.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
