package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittoquery/pkg/adapter/queryhttp"
	"github.com/marmos91/dittoquery/pkg/node"
)

const (
	// DefaultQueryPort is the query port used when none is configured.
	DefaultQueryPort = 8000

	// DefaultSubscriptionPort is the advertised subscription port used when
	// none is configured.
	DefaultSubscriptionPort = 8001

	// DefaultMetricsPort is the Prometheus endpoint port.
	DefaultMetricsPort = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Adapter ports are not touched: Load defaults them through viper so
//     that an explicit 0 keeps meaning "pick a free port"
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyNodeDefaults(&cfg.Node)
	applyIndexDefaults(&cfg.Index)
	applyAdaptersDefaults(&cfg.Adapters, cfg.Server.ShutdownTimeout)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

func applyNodeDefaults(cfg *NodeConfig) {
	if cfg.ID == "" {
		cfg.ID = string(node.DefaultID)
	}
}

// applyIndexDefaults sets index store defaults.
func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Snapshot.S3 == nil {
		cfg.Snapshot.S3 = make(map[string]any)
	}

	// Apply defaults for every store type so generated files list them
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/dittoquery-index"
	}
}

// applyAdaptersDefaults sets adapter defaults. The query adapter inherits
// the server shutdown timeout unless it sets its own.
func applyAdaptersDefaults(cfg *AdaptersConfig, shutdownTimeout time.Duration) {
	if cfg.Query.ShutdownTimeout == 0 {
		cfg.Query.ShutdownTimeout = shutdownTimeout
	}
	cfg.Query.ApplyDefaults()
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Index: IndexConfig{
			Badger: map[string]any{
				"block_cache_size_mb": int64(256),
				"index_cache_size_mb": int64(128),
			},
		},
		Adapters: AdaptersConfig{
			Query: queryhttp.Config{
				Enabled:          true,
				Port:             DefaultQueryPort,
				SubscriptionPort: DefaultSubscriptionPort,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
