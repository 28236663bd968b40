// Package refresh keeps an index in sync with its snapshot.
//
// The refresher periodically reloads the snapshot a node was seeded from,
// so entities published after startup become queryable without a restart.
// Reloads only add and overwrite entries; entities removed from the
// snapshot stay in the index until the node restarts.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/store/index"
)

// Source loads a snapshot into an index. *s3.Loader implements it.
type Source interface {
	Load(ctx context.Context, idx index.Index) (int, error)
}

// Config contains configuration for the refresher.
type Config struct {
	// Enabled controls whether periodic refresh is active
	Enabled bool

	// Interval is how often to reload the snapshot (default: 5m)
	Interval time.Duration

	// Timeout bounds a single reload (default: 10m)
	Timeout time.Duration
}

// Refresher periodically reloads a snapshot into an index.
//
// Thread Safety: Safe for concurrent use.
type Refresher struct {
	source  Source
	idx     index.Index
	config  Config
	stopCh  chan struct{}
	doneCh  chan struct{}
	start   sync.Once
	stop    sync.Once
	mu      sync.Mutex
	started bool
	lastRun *Stats
}

// New creates a refresher. It is initialized but not started; call Start
// to begin background reloads.
//
// Panics if source or idx is nil.
func New(source Source, idx index.Index, config Config) *Refresher {
	if source == nil || idx == nil {
		panic("refresh: source and index are required")
	}

	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}

	return &Refresher{
		source: source,
		idx:    idx,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins background reloads at the configured interval.
//
// Safe to call multiple times (subsequent calls are no-ops).
func (r *Refresher) Start() {
	if !r.config.Enabled {
		logger.Info("Snapshot refresh disabled")
		return
	}

	r.start.Do(func() {
		r.mu.Lock()
		r.started = true
		r.mu.Unlock()

		logger.Info("Starting snapshot refresher: interval=%s timeout=%s",
			r.config.Interval, r.config.Timeout)
		go r.worker()
	})
}

// Stop stops the refresher and waits for an in-progress reload to finish.
//
// Returns ctx.Err() if ctx expires first. Safe to call multiple times and
// before Start.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	r.stop.Do(func() {
		logger.Info("Stopping snapshot refresher...")
		close(r.stopCh)
	})

	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		logger.Warn("Snapshot refresher shutdown timeout")
		return ctx.Err()
	}
}

// RunNow reloads the snapshot immediately and blocks until it completes.
func (r *Refresher) RunNow(ctx context.Context) (*Stats, error) {
	return r.refresh(ctx)
}

// LastRun returns the statistics of the most recent reload, or nil.
func (r *Refresher) LastRun() *Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

func (r *Refresher) worker() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := r.refreshUntilStopped()
			if err != nil {
				logger.Error("Snapshot refresh failed: %v", err)
			} else {
				logger.Info("Snapshot refresh completed: %s", stats.Summary())
			}

		case <-r.stopCh:
			return
		}
	}
}

// refreshUntilStopped runs one reload bounded by the configured timeout.
// A stop request cancels it.
func (r *Refresher) refreshUntilStopped() (*Stats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return r.refresh(ctx)
}

func (r *Refresher) refresh(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	loaded, err := r.source.Load(ctx, r.idx)
	stats.Loaded = loaded
	stats.EndTime = time.Now()

	if total, lenErr := r.idx.Len(ctx); lenErr == nil {
		stats.IndexSize = total
	}

	r.mu.Lock()
	r.lastRun = stats
	r.mu.Unlock()

	if err != nil {
		return stats, fmt.Errorf("snapshot reload: %w", err)
	}
	return stats, nil
}

// Stats contains statistics from a reload.
type Stats struct {
	StartTime time.Time // When the reload started
	EndTime   time.Time // When the reload ended
	Loaded    int       // Entities written by this reload
	IndexSize int       // Entities in the index afterwards
}

// Duration returns the reload duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the reload.
func (s *Stats) Summary() string {
	return fmt.Sprintf("loaded=%d index_size=%d duration=%s",
		s.Loaded, s.IndexSize, s.Duration())
}
