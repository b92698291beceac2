// Package engine is the local-first synchronization engine.
//
// An Engine is built once per entity kind from a durable Store and a remote
// Gateway. Activate binds it to one owner and returns a Session: every
// create, update and delete lands in the Store before the call returns, and
// the matching remote call runs in the background. Pending entities are
// retried by ResyncAll.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/casesync/pkg/core"
)

// Engine drives the sessions of one entity kind.
type Engine[T any] struct {
	kind    core.Kind[T]
	store   core.Store
	gateway core.Gateway[T]
	cfg     Config

	mu       sync.Mutex
	sessions map[string]*Session[T]
}

// New creates an Engine. A nil gateway runs the engine offline: every push
// fails with core.ErrOffline and entities stay pending.
func New[T any](kind core.Kind[T], store core.Store, gateway core.Gateway[T], opts ...Option) *Engine[T] {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine[T]{
		kind:     kind,
		store:    store,
		gateway:  gateway,
		cfg:      cfg,
		sessions: make(map[string]*Session[T]),
	}
}

// Kind returns the entity kind handled by the engine.
func (e *Engine[T]) Kind() core.Kind[T] {
	return e.kind
}

// Activate loads the owner's collection from the Store and starts its
// background workers. Only one session per owner may be active at a time.
func (e *Engine[T]) Activate(ctx context.Context, ownerID string) (*Session[T], error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id cannot be empty")
	}

	e.mu.Lock()
	if _, ok := e.sessions[ownerID]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", core.ErrSessionActive, ownerID)
	}
	s := newSession(e, ownerID)
	e.sessions[ownerID] = s
	e.mu.Unlock()

	s.load(ctx)
	s.start()

	ActiveSessions.WithLabelValues(e.kind.Resource).Inc()
	return s, nil
}

// Session returns the active session of an owner, if any.
func (e *Engine[T]) Session(ownerID string) (*Session[T], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[ownerID]
	return s, ok
}

// Owners returns the owners with an active session, sorted.
func (e *Engine[T]) Owners() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	owners := make([]string, 0, len(e.sessions))
	for o := range e.sessions {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

// StoredOwners lists the owners that have a collection in the Store.
func (e *Engine[T]) StoredOwners(ctx context.Context) ([]string, error) {
	keys, err := e.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	prefix := e.kind.Key("")
	var owners []string
	for _, k := range keys {
		if strings.HasSuffix(k, core.TombstoneSuffix) {
			continue
		}
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			owners = append(owners, k[len(prefix):])
		}
	}
	sort.Strings(owners)
	return owners, nil
}

// Close deactivates every session.
func (e *Engine[T]) Close() {
	e.mu.Lock()
	sessions := make([]*Session[T], 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		s.Deactivate()
	}
}

func (e *Engine[T]) release(ownerID string, s *Session[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[ownerID] == s {
		delete(e.sessions, ownerID)
		ActiveSessions.WithLabelValues(e.kind.Resource).Dec()
	}
}
