package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/refresh"
	"github.com/marmos91/dittoquery/pkg/store/index"
	"github.com/marmos91/dittoquery/pkg/store/index/badger"
	"github.com/marmos91/dittoquery/pkg/store/index/memory"
	indexs3 "github.com/marmos91/dittoquery/pkg/store/index/s3"
)

// CreateLoggerFactory builds the logging factory every component logger is
// derived from.
func CreateLoggerFactory(cfg *LoggingConfig) (*logger.Factory, error) {
	factory, err := logger.NewFactory(logger.Config{
		Level:    cfg.Level,
		Format:   cfg.Format,
		Output:   cfg.Output,
		SinkPath: cfg.SinkPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger factory: %w", err)
	}
	return factory, nil
}

// CreateIndex creates an index store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/store/index/memory (ephemeral)
//   - "badger": Uses pkg/store/index/badger (BadgerDB storage, persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Index store configuration
//
// Returns:
//   - index.Index: Initialized index store
//   - error: Configuration or initialization error
func CreateIndex(ctx context.Context, cfg *IndexConfig) (index.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "badger":
		return createBadgerIndex(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown index store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerIndex creates a BadgerDB-based persistent index.
func createBadgerIndex(ctx context.Context, options map[string]any) (index.Index, error) {
	var storeCfg badger.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger index config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger index: db_path is required")
	}

	store, err := badger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger index: %w", err)
	}

	return store, nil
}

// CreateSnapshotLoader builds the S3 loader of the configured snapshot.
func CreateSnapshotLoader(ctx context.Context, cfg *SnapshotConfig) (*indexs3.Loader, error) {
	var clientCfg indexs3.ClientConfig
	if err := mapstructure.Decode(cfg.S3, &clientCfg); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot s3 config: %w", err)
	}

	client, err := indexs3.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot s3 client: %w", err)
	}

	logger.Info("Index snapshot: bucket=%s, region=%s, prefix=%s",
		cfg.Bucket, clientCfg.Region, cfg.Prefix)

	return indexs3.NewLoader(indexs3.LoaderConfig{
		Client: client,
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	})
}

// LoadSnapshot seeds idx from the configured S3 snapshot.
//
// Returns the number of entities loaded; 0 and no error when the snapshot
// is disabled.
func LoadSnapshot(ctx context.Context, cfg *SnapshotConfig, idx index.Index) (int, error) {
	if !cfg.Enabled {
		return 0, nil
	}

	loader, err := CreateSnapshotLoader(ctx, cfg)
	if err != nil {
		return 0, err
	}
	return loader.Load(ctx, idx)
}

// CreateSnapshotRefresher returns a refresher that reloads source into idx
// every cfg.RefreshInterval. The refresher is disabled when the snapshot is
// disabled or the interval is 0.
func CreateSnapshotRefresher(cfg *SnapshotConfig, source refresh.Source, idx index.Index) *refresh.Refresher {
	return refresh.New(source, idx, refresh.Config{
		Enabled:  cfg.Enabled && cfg.RefreshInterval > 0,
		Interval: cfg.RefreshInterval,
	})
}
