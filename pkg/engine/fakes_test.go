package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/casesync/pkg/adapters/memory"
	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
)

type item struct {
	Title  string `json:"title"`
	Status string `json:"status,omitempty"`
	Due    string `json:"due,omitempty"`
}

var itemKind = core.Kind[item]{
	Name:     "item",
	Resource: "items",
	Less: func(a, b core.Entity[item]) bool {
		if a.Data.Due == b.Data.Due {
			return false
		}
		if a.Data.Due == "" {
			return false
		}
		if b.Data.Due == "" {
			return true
		}
		return a.Data.Due < b.Data.Due
	},
	Facets: func(it item) map[string]string {
		return map[string]string{"status": it.Status}
	},
	Marks: func(e core.Entity[item], now time.Time) []string {
		if e.Data.Due != "" && e.Data.Due < now.Format(time.DateOnly) && e.Data.Status != "done" {
			return []string{"overdue"}
		}
		return nil
	},
	Validate: func(it item) error {
		if it.Title == "" {
			return errors.New("title is required")
		}
		return nil
	},
}

var errUnreachable = errors.New("remote unreachable")

// fakeGateway is an in-memory remote. hook runs before every call and can
// block it or make it fail.
type fakeGateway struct {
	mu     sync.Mutex
	owners map[string]string
	items  map[string]core.Entity[item]
	calls  map[string]int
	hook   func(ctx context.Context, op string) error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		owners: make(map[string]string),
		items:  make(map[string]core.Entity[item]),
		calls:  make(map[string]int),
	}
}

func (g *fakeGateway) setHook(h func(ctx context.Context, op string) error) {
	g.mu.Lock()
	g.hook = h
	g.mu.Unlock()
}

func (g *fakeGateway) offline() {
	g.setHook(func(context.Context, string) error { return errUnreachable })
}

func (g *fakeGateway) online() {
	g.setHook(nil)
}

func (g *fakeGateway) before(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls[op]++
	h := g.hook
	g.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, op)
}

func (g *fakeGateway) seed(ownerID string, e core.Entity[item]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.owners[e.ID] = ownerID
	g.items[e.ID] = e
}

func (g *fakeGateway) has(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.items[id]
	return ok
}

func (g *fakeGateway) count(ownerID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, o := range g.owners {
		if o == ownerID {
			n++
		}
	}
	return n
}

func (g *fakeGateway) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) List(ctx context.Context, ownerID string) ([]core.Entity[item], error) {
	if err := g.before(ctx, "list"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []core.Entity[item]
	for id, o := range g.owners {
		if o == ownerID {
			out = append(out, g.items[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGateway) Create(ctx context.Context, ownerID string, e core.Entity[item]) error {
	if err := g.before(ctx, "create"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.owners[e.ID] = ownerID
	g.items[e.ID] = e
	return nil
}

func (g *fakeGateway) Update(ctx context.Context, id string, e core.Entity[item]) error {
	if err := g.before(ctx, "update"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.items[id]; !ok {
		return core.ErrNotFound
	}
	g.items[id] = e
	return nil
}

func (g *fakeGateway) Delete(ctx context.Context, id string) error {
	if err := g.before(ctx, "delete"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.items[id]; !ok {
		return core.ErrNotFound
	}
	delete(g.items, id)
	delete(g.owners, id)
	return nil
}

var fixedNow = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, store core.Store, gw core.Gateway[item], opts ...engine.Option) *engine.Engine[item] {
	t.Helper()
	base := []engine.Option{
		engine.WithPacing(0),
		engine.WithPushTimeout(2 * time.Second),
		engine.WithRefreshOnActivate(false),
		engine.WithClock(func() time.Time { return fixedNow }),
	}
	e := engine.New(itemKind, store, gw, append(base, opts...)...)
	t.Cleanup(e.Close)
	return e
}

func activate(t *testing.T, e *engine.Engine[item], ownerID string) *engine.Session[item] {
	t.Helper()
	s, err := e.Activate(context.Background(), ownerID)
	require.NoError(t, err)
	<-s.Refreshed()
	return s
}

func flush(t *testing.T, s *engine.Session[item]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func stored(t *testing.T, store *memory.Store, ownerID string) []core.Entity[item] {
	t.Helper()
	data, err := store.Load(context.Background(), itemKind.Key(ownerID))
	require.NoError(t, err)
	var list []core.Entity[item]
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &list))
	}
	return list
}

func seedStore(t *testing.T, store *memory.Store, ownerID string, list ...core.Entity[item]) {
	t.Helper()
	data, err := json.Marshal(list)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), itemKind.Key(ownerID), data))
}
