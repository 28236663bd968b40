package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const configHeader = `DittoQuery Configuration File

Values can be overridden with DITTOQUERY_* environment variables,
e.g. DITTOQUERY_ADAPTERS_QUERY_PORT=9000.`

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if the file already exists
// and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a comment above every
// section and field.
func generateYAMLWithComments(cfg *Config) (string, error) {
	q := cfg.Adapters.Query

	root := mapping(
		field("logging", "Logging configuration", mapping(
			field("level", "Minimum level: DEBUG, INFO, WARN, ERROR", scalar(cfg.Logging.Level)),
			field("format", "Console format: text or json", scalar(cfg.Logging.Format)),
			field("output", "stdout, stderr or a file path", scalar(cfg.Logging.Output)),
			field("sink_path", "File receiving JSON records tagged with a log index (empty disables)", scalar(cfg.Logging.SinkPath)),
		)),
		field("server", "Server-wide settings", mapping(
			field("shutdown_timeout", "Maximum time to wait for graceful shutdown", scalar(cfg.Server.ShutdownTimeout)),
			field("metrics", "Prometheus metrics endpoint", mapping(
				field("enabled", "", scalar(cfg.Server.Metrics.Enabled)),
				field("port", "", scalar(cfg.Server.Metrics.Port)),
			)),
		)),
		field("node", "Node identity", mapping(
			field("id", "1-63 characters of [A-Za-z0-9_], reported in the X-Node-Id header", scalar(cfg.Node.ID)),
		)),
		field("index", "Index store queries are resolved against", mapping(
			field("type", "memory or badger", scalar(cfg.Index.Type)),
			field("badger", "Only used when type = badger", sortedMapping(cfg.Index.Badger)),
			field("snapshot", "Optional S3 snapshot loaded at startup (one JSON object per entity)", mapping(
				field("enabled", "", scalar(cfg.Index.Snapshot.Enabled)),
				field("bucket", "", scalar(cfg.Index.Snapshot.Bucket)),
				field("prefix", "Stripped from object keys to form index keys", scalar(cfg.Index.Snapshot.Prefix)),
				field("s3", "region, endpoint, access_key_id, secret_access_key, max_retries", sortedMapping(cfg.Index.Snapshot.S3)),
				field("refresh_interval", "Reload period while running (0 loads once at startup)", scalar(cfg.Index.Snapshot.RefreshInterval)),
			)),
		)),
		field("adapters", "Protocol adapters", mapping(
			field("query", "Query HTTP front door", mapping(
				field("enabled", "", scalar(q.Enabled)),
				field("port", "Query port (0 picks a free port)", scalar(q.Port)),
				field("subscription_port", "Advertised to clients as the subscription endpoint", scalar(q.SubscriptionPort)),
				field("max_connections", "Concurrent connection cap (0 = unlimited)", scalar(q.MaxConnections)),
				field("accept_rate", "New connections admitted per second (0 = unlimited)", scalar(q.AcceptRate)),
				field("accept_burst", "Connections admitted at once above the rate", scalar(q.AcceptBurst)),
				field("max_body_bytes", "Maximum POST body size", scalar(q.MaxBodyBytes)),
				field("shutdown_timeout", "Drain budget for in-flight connections", scalar(q.ShutdownTimeout)),
				field("timeouts", "Per-connection timeouts", mapping(
					field("read_header", "", scalar(q.Timeouts.ReadHeader)),
					field("read", "", scalar(q.Timeouts.Read)),
					field("write", "", scalar(q.Timeouts.Write)),
					field("idle", "", scalar(q.Timeouts.Idle)),
				)),
			)),
		)),
	)
	root.HeadComment = configHeader

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.String(), nil
}

type yamlField struct {
	key   *yaml.Node
	value *yaml.Node
}

func field(key, comment string, value *yaml.Node) yamlField {
	return yamlField{
		key:   &yaml.Node{Kind: yaml.ScalarNode, Value: key, HeadComment: comment},
		value: value,
	}
}

func mapping(fields ...yamlField) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		n.Content = append(n.Content, f.key, f.value)
	}
	return n
}

func sortedMapping(m map[string]any) *yaml.Node {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]yamlField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, field(k, "", scalar(m[k])))
	}
	return mapping(fields...)
}

// scalar encodes v as a YAML node. Durations are written in their string
// form ("30s") which viper decodes back into time.Duration.
func scalar(v any) *yaml.Node {
	if d, ok := v.(time.Duration); ok {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: d.String()}
	}

	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(v)}
	}
	return n
}
