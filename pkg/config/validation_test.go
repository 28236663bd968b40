package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidIndexType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Index.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown index type")
	}
}

func TestValidate_NodeID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"default", true},
		{"index_node_0", true},
		{"Node42", true},
		{"", false},
		{"has space", false},
		{"dash-ed", false},
		{strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		cfg := GetDefaultConfig()
		cfg.Node.ID = tt.id

		err := Validate(cfg)
		if tt.valid && err != nil {
			t.Errorf("Expected node id %q to be valid, got: %v", tt.id, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("Expected node id %q to be rejected", tt.id)
		}
	}
}

func TestValidate_ZeroShutdownTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero shutdown timeout")
	}
}

func TestValidate_NoAdapterEnabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Query.Enabled = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when no adapter is enabled")
	}
	if !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_SamePorts(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Query.SubscriptionPort = cfg.Adapters.Query.Port

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for identical ports")
	}
	if !strings.Contains(err.Error(), "adapters.query") {
		t.Errorf("Expected error scoped to adapters.query, got: %v", err)
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.Query.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for out-of-range port")
	}
}

func TestValidate_MetricsPortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Port = cfg.Adapters.Query.Port

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for metrics port conflict")
	}

	cfg.Server.Metrics.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("Disabled metrics should not conflict: %v", err)
	}
}

func TestValidate_BadgerRequiresPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Index.Type = "badger"
	cfg.Index.Badger = map[string]any{}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for badger without db_path")
	}

	cfg.Index.Badger["in_memory"] = true
	if err := Validate(cfg); err != nil {
		t.Errorf("In-memory badger should not need a path: %v", err)
	}
}

func TestValidate_Snapshot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Index.Snapshot.Enabled = true

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for snapshot without bucket")
	}

	cfg.Index.Snapshot.Bucket = "entities"
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for snapshot without region")
	}

	cfg.Index.Snapshot.S3["region"] = "us-east-1"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected complete snapshot config to be valid: %v", err)
	}
}
