package fs

import (
	"context"
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Path     string     `json:"path"`
	ReadOnly bool       `json:"read_only"`
	Keys     int        `json:"keys"`
	LastSave *time.Time `json:"last_save,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	keys, _ := s.Keys(context.Background())

	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreState{
		Path:     s.Path,
		ReadOnly: s.config.ReadOnly,
		Keys:     len(keys),
		LastSave: s.lastSave,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "fs-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
