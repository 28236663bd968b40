// Package memory provides an in-memory index.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittoquery/pkg/store/index"
)

// Store is an Index backed by a map. Contents are lost on restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

var _ index.Index = (*Store)(nil)

func New() *Store {
	return &Store{entries: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("memory index is closed")
	}
	v, ok := s.entries[key]
	if !ok {
		return nil, index.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("memory index is closed")
	}
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}
