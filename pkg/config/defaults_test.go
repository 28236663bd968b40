package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Empty(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected metrics port %d, got %d", DefaultMetricsPort, cfg.Server.Metrics.Port)
	}
	if cfg.Node.ID != "default" {
		t.Errorf("Expected node id 'default', got %q", cfg.Node.ID)
	}
	if cfg.Index.Type != "memory" {
		t.Errorf("Expected index type memory, got %q", cfg.Index.Type)
	}
	if cfg.Index.Badger["db_path"] == nil {
		t.Error("Expected badger db_path default")
	}
	if cfg.Index.Snapshot.S3 == nil {
		t.Error("Expected snapshot s3 map to be initialized")
	}
}

func TestApplyDefaults_DoesNotTouchPorts(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Adapters.Query.Port != 0 || cfg.Adapters.Query.SubscriptionPort != 0 {
		t.Errorf("Expected ports to stay 0, got %d/%d",
			cfg.Adapters.Query.Port, cfg.Adapters.Query.SubscriptionPort)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Logging: LoggingConfig{Level: "debug", Format: "json", Output: "stderr"},
		Server:  ServerConfig{ShutdownTimeout: 5 * time.Second},
		Node:    NodeConfig{ID: "n1"},
		Index:   IndexConfig{Type: "badger", Badger: map[string]any{"db_path": "/data"}},
	}
	cfg.Adapters.Query.ShutdownTimeout = time.Second

	ApplyDefaults(&cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Explicit logging values were overwritten: %+v", cfg.Logging)
	}
	if cfg.Node.ID != "n1" {
		t.Errorf("Expected node id n1, got %q", cfg.Node.ID)
	}
	if cfg.Index.Badger["db_path"] != "/data" {
		t.Errorf("Expected db_path /data, got %v", cfg.Index.Badger["db_path"])
	}
	if cfg.Adapters.Query.ShutdownTimeout != time.Second {
		t.Errorf("Expected adapter shutdown timeout 1s, got %v", cfg.Adapters.Query.ShutdownTimeout)
	}
}

func TestApplyDefaults_AdapterInheritsShutdownTimeout(t *testing.T) {
	cfg := Config{Server: ServerConfig{ShutdownTimeout: 7 * time.Second}}
	ApplyDefaults(&cfg)

	if cfg.Adapters.Query.ShutdownTimeout != 7*time.Second {
		t.Errorf("Expected adapter shutdown timeout 7s, got %v", cfg.Adapters.Query.ShutdownTimeout)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Adapters.Query.Enabled {
		t.Error("Expected query adapter enabled")
	}
	if cfg.Adapters.Query.Port != DefaultQueryPort {
		t.Errorf("Expected query port %d, got %d", DefaultQueryPort, cfg.Adapters.Query.Port)
	}
	if cfg.Adapters.Query.SubscriptionPort != DefaultSubscriptionPort {
		t.Errorf("Expected subscription port %d, got %d", DefaultSubscriptionPort, cfg.Adapters.Query.SubscriptionPort)
	}
	if cfg.Adapters.Query.Timeouts.ReadHeader == 0 {
		t.Error("Expected adapter timeouts to be defaulted")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}
