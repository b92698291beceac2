package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/casesync/pkg/core"
)

// Session is an Engine bound to one owner.
//
// Reads and local mutations only touch the in-memory collection and the
// Store; remote calls are queued on the outbox and their outcomes come back
// over a channel to a single applier goroutine.
type Session[T any] struct {
	engine   *Engine[T]
	ownerID  string
	key      string
	tombsKey string
	log      *slog.Logger

	mu    sync.Mutex
	items map[string]core.Entity[T]

	// revs counts local mutations per id; a push result only marks an
	// entity synced if no mutation happened after the push snapshot.
	revs map[string]uint64

	// tombs holds ids deleted locally whose remote delete is unconfirmed.
	// It is persisted under tombsKey so it outlives the session.
	tombs map[string]struct{}

	// acked records the ack generation of ids the remote confirmed.
	acked  map[string]uint64
	ackGen uint64

	closed       bool
	eventsClosed bool
	inflight     int
	idle         chan struct{}

	outbox    *outbox[T]
	results   chan pushResult[T]
	events    chan core.Event
	refreshed chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSession[T any](e *Engine[T], ownerID string) *Session[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session[T]{
		engine:    e,
		ownerID:   ownerID,
		key:       e.kind.Key(ownerID),
		tombsKey:  e.kind.TombstoneKey(ownerID),
		log:       e.cfg.Logger.With("kind", e.kind.Resource, "owner", ownerID),
		items:     make(map[string]core.Entity[T]),
		revs:      make(map[string]uint64),
		tombs:     make(map[string]struct{}),
		acked:     make(map[string]uint64),
		outbox:    newOutbox[T](),
		results:   make(chan pushResult[T], 64),
		events:    make(chan core.Event, e.cfg.EventBuffer),
		refreshed: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OwnerID returns the owner the session is bound to.
func (s *Session[T]) OwnerID() string {
	return s.ownerID
}

// Events returns the session's event stream. It is closed by Deactivate.
func (s *Session[T]) Events() <-chan core.Event {
	return s.events
}

// Refreshed is closed once the activation merge has finished (or was skipped).
func (s *Session[T]) Refreshed() <-chan struct{} {
	return s.refreshed
}

// load reads the owner's collection and pending deletes. Store errors and
// undecodable data degrade to an empty collection.
func (s *Session[T]) load(ctx context.Context) {
	s.loadTombstones(ctx)

	data, err := s.engine.store.Load(ctx, s.key)
	if err != nil {
		s.log.Warn("local store unavailable, starting empty", "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	var list []core.Entity[T]
	if err := json.Unmarshal(data, &list); err != nil {
		s.log.Warn("local store corrupt, starting empty", "error", err)
		return
	}

	for _, e := range list {
		if e.ID == "" {
			continue
		}
		if _, deleted := s.tombs[e.ID]; deleted {
			// Crashed between saving the tombstone and the collection.
			continue
		}
		if e.OwnerID == "" {
			e.OwnerID = s.ownerID
		}
		if prev, ok := s.items[e.ID]; ok && prev.UpdatedAt.After(e.UpdatedAt) {
			continue
		}
		s.items[e.ID] = e
	}
	s.log.Debug("collection loaded", "entities", len(s.items), "tombstones", len(s.tombs))
}

func (s *Session[T]) loadTombstones(ctx context.Context) {
	data, err := s.engine.store.Load(ctx, s.tombsKey)
	if err != nil {
		s.log.Warn("pending deletes unavailable", "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		s.log.Warn("pending deletes corrupt, ignoring", "error", err)
		return
	}
	for _, id := range ids {
		if id != "" {
			s.tombs[id] = struct{}{}
		}
	}
}

func (s *Session[T]) start() {
	s.spawn("outbox", s.runOutbox)
	s.spawn("applier", s.runApplier)

	if !s.engine.cfg.RefreshOnActivate {
		close(s.refreshed)
		return
	}
	s.spawn("refresh", func(ctx context.Context) error {
		defer close(s.refreshed)
		if err := s.Refresh(ctx); err != nil {
			s.log.Debug("activation refresh skipped", "error", err)
		}
		return nil
	})
}

// spawn runs fn under lifecycle.Go and tracks it for Deactivate.
func (s *Session[T]) spawn(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	lifecycle.Go(s.ctx, func(ctx context.Context) error {
		defer s.wg.Done()
		return fn(ctx)
	}, lifecycle.WithErrorHandler(func(err error) {
		s.log.Error("background task failed", "task", name, "error", err)
	}))
}

// Deactivate stops the background workers. Queued pushes are abandoned; the
// affected entities stay pending in the Store and are picked up by the next
// ResyncAll.
func (s *Session[T]) Deactivate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.eventsClosed = true
	close(s.events)
	s.mu.Unlock()

	s.engine.release(s.ownerID, s)
	s.log.Debug("session deactivated", "abandoned", s.outbox.len())
}

// List returns the collection in kind order.
func (s *Session[T]) List() []core.Entity[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Get returns one entity.
func (s *Session[T]) Get(id string) (core.Entity[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Entity[T]{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return e, nil
}

// Filter returns the entities matching every criterion, in kind order.
func (s *Session[T]) Filter(criteria ...Criterion[T]) []core.Entity[T] {
	return Select(s.List(), s.engine.cfg.Clock(), criteria...)
}

// Stats aggregates the current collection.
func (s *Session[T]) Stats() Stats {
	return Summarize(s.engine.kind, s.List(), s.engine.cfg.Clock())
}

// Create stores a new entity locally and queues its push.
// It returns before any remote call is made.
func (s *Session[T]) Create(ctx context.Context, payload T) (core.Entity[T], error) {
	if err := s.validate(payload); err != nil {
		return core.Entity[T]{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Entity[T]{}, core.ErrSessionClosed
	}

	now := s.engine.cfg.Clock()
	id := s.engine.cfg.NewID(s.engine.kind.Name, now)
	for _, taken := s.items[id]; taken; _, taken = s.items[id] {
		id = s.engine.cfg.NewID(s.engine.kind.Name, now)
	}

	e := core.Entity[T]{
		ID:        id,
		OwnerID:   s.ownerID,
		Data:      payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[id] = e
	s.revs[id]++
	s.persistLocked(ctx)
	s.enqueueLocked(pushJob[T]{op: opSave, id: id, entity: e, rev: s.revs[id]})

	LocalWritesTotal.WithLabelValues(s.engine.kind.Resource, "create").Inc()
	s.emitLocked(core.EventCreate, id, nil)
	return e, nil
}

// Update applies patch to a copy of the entity, stores it as pending and
// queues its push.
func (s *Session[T]) Update(ctx context.Context, id string, patch Patch[T]) (core.Entity[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Entity[T]{}, core.ErrSessionClosed
	}

	e, ok := s.items[id]
	if !ok {
		return core.Entity[T]{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	data := e.Data
	if patch != nil {
		if err := patch(&data); err != nil {
			return core.Entity[T]{}, fmt.Errorf("%w: %w", core.ErrInvalidEntity, err)
		}
	}
	if err := s.validate(data); err != nil {
		return core.Entity[T]{}, err
	}

	e.Data = data
	e.UpdatedAt = s.engine.cfg.Clock()
	e.Synced = false
	s.items[id] = e
	s.revs[id]++
	s.persistLocked(ctx)
	s.enqueueLocked(pushJob[T]{op: opSave, id: id, entity: e, rev: s.revs[id]})

	LocalWritesTotal.WithLabelValues(s.engine.kind.Resource, "update").Inc()
	s.emitLocked(core.EventUpdate, id, nil)
	return e, nil
}

// Delete removes the entity locally and queues a best-effort remote delete.
// A failing remote delete is logged, never returned.
func (s *Session[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSessionClosed
	}

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	delete(s.items, id)
	delete(s.revs, id)
	s.tombs[id] = struct{}{}
	s.persistTombstonesLocked(ctx)
	s.persistLocked(ctx)
	s.enqueueLocked(pushJob[T]{op: opDelete, id: id})

	LocalWritesTotal.WithLabelValues(s.engine.kind.Resource, "delete").Inc()
	s.emitLocked(core.EventDelete, id, nil)
	return nil
}

// Refresh fetches the remote snapshot and merges it into the collection.
// On any failure the collection and the Store are left unchanged.
func (s *Session[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	startGen := s.ackGen
	s.mu.Unlock()

	var remote []core.Entity[T]
	err := s.call(ctx, "list", func(ctx context.Context) error {
		var err error
		remote, err = s.engine.gateway.List(ctx, s.ownerID)
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrMalformedSnapshot) {
			s.reject(err)
			return err
		}
		MergesTotal.WithLabelValues(s.engine.kind.Resource, "unreachable").Inc()
		return fmt.Errorf("fetch remote snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSessionClosed
	}

	merged, err := Merge(s.engine.kind, s.ownerID, MergeInput[T]{
		Local:   s.sortedLocked(),
		Remote:  remote,
		Deleted: s.tombs,
		Retain: func(id string) bool {
			return s.acked[id] > startGen
		},
	})
	if err != nil {
		s.rejectLocked(err)
		return err
	}

	next := make(map[string]core.Entity[T], len(merged))
	for _, e := range merged {
		if e.Synced {
			// Replaced by the remote copy; outcomes of older pushes must not touch it.
			s.revs[e.ID]++
		}
		next[e.ID] = e
	}
	for id := range s.revs {
		if _, ok := next[id]; !ok {
			delete(s.revs, id)
		}
	}
	s.items = next
	s.persistLocked(ctx)

	MergesTotal.WithLabelValues(s.engine.kind.Resource, "merged").Inc()
	s.log.Debug("remote snapshot merged", "remote", len(remote), "entities", len(next))
	s.emitLocked(core.EventMerged, "", nil)
	return nil
}

func (s *Session[T]) reject(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectLocked(err)
}

func (s *Session[T]) rejectLocked(err error) {
	MergesTotal.WithLabelValues(s.engine.kind.Resource, "rejected").Inc()
	s.log.Warn("remote snapshot rejected", "error", err)
	s.emitLocked(core.EventMergeRejected, "", err)
}

// Flush waits until every queued push has been attempted and its outcome
// applied.
func (s *Session[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return core.ErrSessionClosed
	}
}

func (s *Session[T]) validate(payload T) error {
	if s.engine.kind.Validate == nil {
		return nil
	}
	if err := s.engine.kind.Validate(payload); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidEntity, err)
	}
	return nil
}

func (s *Session[T]) sortedLocked() []core.Entity[T] {
	list := make([]core.Entity[T], 0, len(s.items))
	for _, e := range s.items {
		list = append(list, e)
	}
	Sort(s.engine.kind, list)
	return list
}

// persistLocked writes the whole collection. A failing Store is logged and
// the in-memory collection stays authoritative.
func (s *Session[T]) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.sortedLocked())
	if err != nil {
		s.log.Error("failed to encode collection", "error", err)
		return
	}
	if err := s.engine.store.Save(context.WithoutCancel(ctx), s.key, data); err != nil {
		s.log.Warn("failed to persist collection", "error", err)
	}
}

// persistTombstonesLocked writes the pending deletes, sorted.
func (s *Session[T]) persistTombstonesLocked(ctx context.Context) {
	ids := make([]string, 0, len(s.tombs))
	for id := range s.tombs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		s.log.Error("failed to encode pending deletes", "error", err)
		return
	}
	if err := s.engine.store.Save(context.WithoutCancel(ctx), s.tombsKey, data); err != nil {
		s.log.Warn("failed to persist pending deletes", "error", err)
	}
}

func (s *Session[T]) beginLocked() {
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *Session[T]) endLocked() {
	if s.inflight == 0 {
		return
	}
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// emitLocked publishes an event without ever blocking; events are dropped
// when the buffer is full.
func (s *Session[T]) emitLocked(t core.EventType, id string, err error) {
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- core.Event{Type: t, OwnerID: s.ownerID, ID: id, Err: err, Timestamp: s.engine.cfg.Clock().Unix()}:
	default:
	}
}
