package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittoquery/pkg/metrics"
	"github.com/marmos91/dittoquery/pkg/query"
	"github.com/marmos91/dittoquery/pkg/store/index"
	"github.com/marmos91/dittoquery/pkg/store/index/memory"
)

func TestCreateIndex_Memory(t *testing.T) {
	idx, err := CreateIndex(context.Background(), &IndexConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory index: %v", err)
	}
	defer idx.Close()

	if err := idx.Put(context.Background(), "k", []byte(`1`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestCreateIndex_BadgerInMemory(t *testing.T) {
	idx, err := CreateIndex(context.Background(), &IndexConfig{
		Type: "badger",
		Badger: map[string]any{
			"in_memory":           true,
			"block_cache_size_mb": 8,
			"index_cache_size_mb": "8",
		},
	})
	if err != nil {
		t.Fatalf("Failed to create badger index: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Put(ctx, "token_1", []byte(`{"symbol":"GRT"}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if n, err := idx.Len(ctx); err != nil || n != 1 {
		t.Errorf("Expected 1 entry, got %d (err=%v)", n, err)
	}
}

func TestCreateIndex_BadgerOnDisk(t *testing.T) {
	idx, err := CreateIndex(context.Background(), &IndexConfig{
		Type: "badger",
		Badger: map[string]any{
			"db_path":             filepath.Join(t.TempDir(), "index"),
			"block_cache_size_mb": int64(8),
			"index_cache_size_mb": int64(8),
		},
	})
	if err != nil {
		t.Fatalf("Failed to create badger index: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCreateIndex_BadgerMissingPath(t *testing.T) {
	_, err := CreateIndex(context.Background(), &IndexConfig{Type: "badger", Badger: map[string]any{}})
	if err == nil {
		t.Fatal("Expected error for badger index without db_path")
	}
}

func TestCreateIndex_UnknownType(t *testing.T) {
	_, err := CreateIndex(context.Background(), &IndexConfig{Type: "postgres"})
	if err == nil {
		t.Fatal("Expected error for unknown index type")
	}
}

func TestCreateIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := CreateIndex(ctx, &IndexConfig{Type: "memory"}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestLoadSnapshot_Disabled(t *testing.T) {
	n, err := LoadSnapshot(context.Background(), &SnapshotConfig{}, memory.New())
	if err != nil {
		t.Fatalf("Expected no error for disabled snapshot, got: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 entities, got %d", n)
	}
}

func TestLoadSnapshot_MissingRegion(t *testing.T) {
	cfg := &SnapshotConfig{Enabled: true, Bucket: "entities", S3: map[string]any{}}

	if _, err := LoadSnapshot(context.Background(), cfg, memory.New()); err == nil {
		t.Fatal("Expected error for snapshot without region")
	}
}

type staticSource struct{ loads int }

func (s *staticSource) Load(ctx context.Context, idx index.Index) (int, error) {
	s.loads++
	return 1, idx.Put(ctx, "entity", []byte(`{}`))
}

func TestCreateSnapshotRefresher(t *testing.T) {
	idx := memory.New()
	source := &staticSource{}
	cfg := &SnapshotConfig{Enabled: true, Bucket: "entities", RefreshInterval: time.Hour}

	r := CreateSnapshotRefresher(cfg, source, idx)
	stats, err := r.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if stats.Loaded != 1 || stats.IndexSize != 1 {
		t.Errorf("Unexpected stats: %s", stats.Summary())
	}

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestCreateSnapshotRefresher_ZeroIntervalDisabled(t *testing.T) {
	source := &staticSource{}
	r := CreateSnapshotRefresher(&SnapshotConfig{Enabled: true}, source, memory.New())

	r.Start()
	if err := r.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if source.loads != 0 {
		t.Errorf("Expected no reloads, got %d", source.loads)
	}
}

func TestCreateLoggerFactory(t *testing.T) {
	dir := t.TempDir()
	factory, err := CreateLoggerFactory(&LoggingConfig{
		Level:    "INFO",
		Format:   "json",
		Output:   filepath.Join(dir, "out.log"),
		SinkPath: filepath.Join(dir, "sink.jsonl"),
	})
	if err != nil {
		t.Fatalf("Failed to create logger factory: %v", err)
	}
	defer factory.Close()

	if !factory.HasSink() {
		t.Error("Expected factory to have a sink")
	}
}

func TestCreateLoggerFactory_InvalidLevel(t *testing.T) {
	if _, err := CreateLoggerFactory(&LoggingConfig{Level: "LOUD", Output: "stdout"}); err == nil {
		t.Fatal("Expected error for invalid level")
	}
}

func TestCreateAdapters(t *testing.T) {
	factory, err := CreateLoggerFactory(&LoggingConfig{Level: "INFO", Output: "stderr"})
	if err != nil {
		t.Fatalf("Failed to create logger factory: %v", err)
	}
	runner := query.NewIndexRunner(memory.New())

	cfg := GetDefaultConfig()
	adapters := CreateAdapters(cfg, factory, runner, nil)
	if len(adapters) != 1 {
		t.Fatalf("Expected 1 adapter, got %d", len(adapters))
	}
	if adapters[0].Protocol() != "HTTP" {
		t.Errorf("Expected HTTP adapter, got %q", adapters[0].Protocol())
	}
	if adapters[0].Port() != DefaultQueryPort {
		t.Errorf("Expected port %d, got %d", DefaultQueryPort, adapters[0].Port())
	}

	cfg.Adapters.Query.Enabled = false
	if got := CreateAdapters(cfg, factory, runner, nil); len(got) != 0 {
		t.Errorf("Expected no adapters when disabled, got %d", len(got))
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())

	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.QueryMetrics == nil {
		t.Error("Expected no-op query metrics")
	}
}

func TestInitializeMetrics_Enabled(t *testing.T) {
	t.Cleanup(metrics.ResetRegistry)

	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true
	result := InitializeMetrics(cfg)

	if result.Server == nil {
		t.Fatal("Expected a metrics server")
	}
	if result.Server.Port() != DefaultMetricsPort {
		t.Errorf("Expected metrics port %d, got %d", DefaultMetricsPort, result.Server.Port())
	}
	if !metrics.IsEnabled() {
		t.Error("Expected metrics registry to be initialized")
	}
}
