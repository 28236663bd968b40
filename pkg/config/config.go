package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittoquery/pkg/adapter/queryhttp"
)

// Config represents the complete DittoQuery node configuration.
//
// This structure captures all configurable aspects of a query node:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics)
//   - Node identity
//   - Index store selection, store-specific options and startup snapshot
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOQUERY_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each index store defines its own configuration type. The Config struct
// keeps type-specific sections (e.g. index.badger) as raw maps and only the
// section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Node identifies this node to clients
	Node NodeConfig `mapstructure:"node"`

	// Index specifies the index store queries are resolved against
	Index IndexConfig `mapstructure:"index"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the console log format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`

	// SinkPath is the file receiving JSON records of components that log to
	// an index (e.g. "query-server-logs"). Empty disables the sink.
	SinkPath string `mapstructure:"sink_path"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled starts the metrics server and real collectors
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics server port (default: 9090)
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// NodeConfig identifies the node.
type NodeConfig struct {
	// ID is reported on every response. 1-63 characters of [A-Za-z0-9_].
	ID string `mapstructure:"id" validate:"required,node_id"`
}

// IndexConfig specifies the index store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type IndexConfig struct {
	// Type specifies which index store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// Snapshot optionally seeds the index from an S3 bucket at startup
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// SnapshotConfig describes the S3 location of an index snapshot.
type SnapshotConfig struct {
	// Enabled loads the snapshot before the node starts serving
	Enabled bool `mapstructure:"enabled"`

	// Bucket holding one JSON object per entity
	Bucket string `mapstructure:"bucket" validate:"required_if=Enabled true"`

	// Prefix is stripped from object keys to form index keys
	Prefix string `mapstructure:"prefix"`

	// S3 contains client options (region, endpoint, credentials, retries)
	S3 map[string]any `mapstructure:"s3"`

	// RefreshInterval reloads the snapshot periodically while the node runs.
	// 0 loads it once at startup.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gte=0"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Query contains the query HTTP front door configuration.
	// Uses the queryhttp.Config type directly to avoid duplication.
	Query queryhttp.Config `mapstructure:"query"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOQUERY_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables, config file
// settings and the defaults that cannot be applied after unmarshalling.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DITTOQUERY_ prefix and underscores
	// Example: DITTOQUERY_ADAPTERS_QUERY_PORT=9000
	v.SetEnvPrefix("DITTOQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Ports are defaulted here rather than in ApplyDefaults: an explicit 0
	// in the file asks for an ephemeral port and must survive.
	v.SetDefault("adapters.query.enabled", true)
	v.SetDefault("adapters.query.port", DefaultQueryPort)
	v.SetDefault("adapters.query.subscription_port", DefaultSubscriptionPort)
	v.SetDefault("server.metrics.port", DefaultMetricsPort)
	v.SetDefault("node.id", "default")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittoquery/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is reported as a plain
		// os error, not as ConfigFileNotFoundError.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoquery")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoquery")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
