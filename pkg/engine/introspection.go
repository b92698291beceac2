package engine

import (
	"github.com/aretw0/introspection"
)

// SessionState exposes a session's internal state for observability.
type SessionState struct {
	Owner      string `json:"owner"`
	Resource   string `json:"resource"`
	Entities   int    `json:"entities"`
	Pending    int    `json:"pending"`
	Tombstones int    `json:"tombstones"`
	Inflight   int    `json:"inflight"`
	Queued     int    `json:"queued"`
	Closed     bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (s *Session[T]) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, e := range s.items {
		if !e.Synced {
			pending++
		}
	}
	return SessionState{
		Owner:      s.ownerID,
		Resource:   s.engine.kind.Resource,
		Entities:   len(s.items),
		Pending:    pending,
		Tombstones: len(s.tombs),
		Inflight:   s.inflight,
		Queued:     s.outbox.len(),
		Closed:     s.closed,
	}
}

// ComponentType implements introspection.Component.
func (s *Session[T]) ComponentType() string {
	return "sync-session"
}

// EngineState exposes an engine's internal state for observability.
type EngineState struct {
	Resource     string   `json:"resource"`
	ActiveOwners []string `json:"active_owners"`
	Online       bool     `json:"online"`
}

// State implements introspection.Introspectable.
func (e *Engine[T]) State() any {
	return EngineState{
		Resource:     e.kind.Resource,
		ActiveOwners: e.Owners(),
		Online:       e.gateway != nil,
	}
}

// ComponentType implements introspection.Component.
func (e *Engine[T]) ComponentType() string {
	return "sync-engine"
}

var (
	_ introspection.Introspectable = (*Session[struct{}])(nil)
	_ introspection.Component      = (*Session[struct{}])(nil)
	_ introspection.Introspectable = (*Engine[struct{}])(nil)
	_ introspection.Component      = (*Engine[struct{}])(nil)
)
