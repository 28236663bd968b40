// Package badger provides a persistent index backed by BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/dittoquery/pkg/store/index"
)

// entityPrefix namespaces entity keys so other record types can share the
// database later without a migration.
const entityPrefix = "e:"

const (
	defaultBlockCacheMB = 256
	defaultIndexCacheMB = 128
)

// Config configures a BadgerDB index.
type Config struct {
	// DBPath is the directory holding the database. Ignored when InMemory is set.
	DBPath string `mapstructure:"db_path"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 256)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 128)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// InMemory keeps the whole database in memory. Used by tests.
	InMemory bool `mapstructure:"in_memory"`
}

// Store is an Index backed by BadgerDB.
//
// Thread safety:
// Safe for concurrent use. BadgerDB serializes conflicting transactions.
type Store struct {
	db *badger.DB
}

var _ index.Index = (*Store)(nil)

// New opens (or creates) a BadgerDB index.
//
// Parameters:
//   - ctx: Context for cancellation before the database is opened
//   - cfg: Database location and cache sizes
//
// Returns:
//   - *Store: The opened store
//   - error: Error if ctx is cancelled or the database cannot be opened
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" && !cfg.InMemory {
		return nil, errors.New("badger index requires a db_path")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.DBPath)
	}

	// Entities are small JSON documents read far more often than written.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = defaultBlockCacheMB
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = defaultIndexCacheMB
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &Store{db: db}, nil
}

func entityKey(key string) []byte {
	return []byte(entityPrefix + key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return index.ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}

	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entityKey(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

// Len counts entity keys with a key-only scan.
func (s *Store) Len(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(entityPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
