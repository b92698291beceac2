// Package memory implements an in-process core.Store.
// Nothing survives a restart; it backs tests and ephemeral sessions.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/casesync/pkg/core"
)

// Store is a map-backed core.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Close() error { return nil }

var _ core.Store = (*Store)(nil)
