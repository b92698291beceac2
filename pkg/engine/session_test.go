package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/casesync/pkg/adapters/memory"
	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
)

func TestSession_CreateIsLocalFirst(t *testing.T) {
	gw := newFakeGateway()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	gw.setHook(func(ctx context.Context, op string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return errUnreachable
	})

	store := memory.NewStore()
	s := activate(t, newTestEngine(t, store, gw), "case-1")

	created, err := s.Create(context.Background(), item{Title: "call the client"})
	require.NoError(t, err)
	assert.Regexp(t, `^item_\d+_[0-9a-f]{9}$`, created.ID)
	assert.Equal(t, "case-1", created.OwnerID)
	assert.False(t, created.Synced)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.False(t, list[0].Synced)

	persisted := stored(t, store, "case-1")
	require.Len(t, persisted, 1)
	assert.Equal(t, created.ID, persisted[0].ID)
}

func TestSession_OfflineThenResync(t *testing.T) {
	gw := newFakeGateway()
	gw.offline()

	store := memory.NewStore()
	s := activate(t, newTestEngine(t, store, gw), "case-1")
	ctx := context.Background()

	t1, err := s.Create(ctx, item{Title: "T1", Due: "2025-01-10"})
	require.NoError(t, err)
	flush(t, s)

	got, err := s.Get(t1.ID)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Equal(t, 1, s.Stats().Unsynced)

	gw.online()
	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ResyncReport{Attempted: 1, Synced: 1}, report)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, t1.ID, list[0].ID)
	assert.True(t, list[0].Synced)
	assert.Equal(t, 1, gw.count("case-1"))
	assert.True(t, stored(t, store, "case-1")[0].Synced)

	// Resync is idempotent.
	report, err = s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ResyncReport{}, report)
	assert.True(t, s.List()[0].Synced)
	assert.Equal(t, 1, gw.count("case-1"))
}

func TestSession_ResyncCountsFailures(t *testing.T) {
	gw := newFakeGateway()
	gw.offline()
	s := activate(t, newTestEngine(t, memory.NewStore(), gw), "case-1")
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, item{Title: title})
		require.NoError(t, err)
	}
	flush(t, s)

	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ResyncReport{Attempted: 3, Failed: 3}, report)
	assert.Len(t, s.Filter(engine.Pending[item]()), 3)
}

func TestSession_ResyncHonoursContext(t *testing.T) {
	gw := newFakeGateway()
	gw.offline()
	s := activate(t, newTestEngine(t, memory.NewStore(), gw, engine.WithPacing(time.Hour)), "case-1")

	for _, title := range []string{"a", "b"} {
		_, err := s.Create(context.Background(), item{Title: title})
		require.NoError(t, err)
	}
	flush(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	report, err := s.ResyncAll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, report.Attempted)
}

func TestSession_RefreshRemoteWinsOnCollision(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "case-1", ent("task_1", "local A", "2025-01-10", false))

	gw := newFakeGateway()
	gw.seed("case-1", ent("task_1", "remote B", "2025-01-12", true))

	s := activate(t, newTestEngine(t, store, gw), "case-1")
	require.NoError(t, s.Refresh(context.Background()))

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "task_1", list[0].ID)
	assert.Equal(t, item{Title: "remote B", Due: "2025-01-12"}, list[0].Data)
	assert.True(t, list[0].Synced)

	persisted := stored(t, store, "case-1")
	require.Len(t, persisted, 1)
	assert.Equal(t, "remote B", persisted[0].Data.Title)
}

func TestSession_RefreshOnActivate(t *testing.T) {
	store := memory.NewStore()
	pending := ent("item_local", "written offline", "", false)
	seedStore(t, store, "case-1", pending)

	gw := newFakeGateway()
	gw.seed("case-1", ent("item_remote", "from server", "", true))
	gw.seed("case-2", ent("item_other", "someone else", "", true))

	s := activate(t, newTestEngine(t, store, gw, engine.WithRefreshOnActivate(true)), "case-1")

	assert.ElementsMatch(t, []string{"item_local", "item_remote"}, ids(s.List()))
	assert.Len(t, stored(t, store, "case-1"), 2)
}

func TestSession_RefreshRejectsMalformedSnapshot(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "case-1", ent("item_1", "kept", "", true))
	before, err := store.Load(context.Background(), itemKind.Key("case-1"))
	require.NoError(t, err)

	gw := newFakeGateway()
	foreign := ent("item_2", "wrong owner", "", true)
	foreign.OwnerID = "case-9"
	gw.seed("case-1", foreign)

	s := activate(t, newTestEngine(t, store, gw), "case-1")
	err = s.Refresh(context.Background())
	assert.ErrorIs(t, err, core.ErrMalformedSnapshot)

	assert.Equal(t, []string{"item_1"}, ids(s.List()))
	after, err := store.Load(context.Background(), itemKind.Key("case-1"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	ev := drain(s)
	assert.Contains(t, ev, core.EventMergeRejected)
}

func TestSession_RefreshUnreachableKeepsCollection(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "case-1", ent("item_1", "kept", "", true))

	gw := newFakeGateway()
	gw.offline()
	s := activate(t, newTestEngine(t, store, gw), "case-1")

	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, errUnreachable)
	assert.Equal(t, []string{"item_1"}, ids(s.List()))
}

func TestSession_DeleteOfflineDoesNotReappear(t *testing.T) {
	store := memory.NewStore()
	synced := ent("task_1", "done remotely", "", true)
	synced.Remote = true
	seedStore(t, store, "case-1", synced)

	gw := newFakeGateway()
	gw.seed("case-1", synced)
	gw.offline()

	s := activate(t, newTestEngine(t, store, gw), "case-1")
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "task_1"))
	assert.Empty(t, s.List())
	assert.Empty(t, stored(t, store, "case-1"))
	flush(t, s)
	assert.True(t, gw.has("task_1"), "remote delete failed while offline")

	gw.online()
	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.List(), "tombstone keeps the remote copy out")

	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ResyncReport{Attempted: 1, Deleted: 1}, report)
	assert.False(t, gw.has("task_1"))

	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.List())
}

func TestSession_DeleteSurvivesRestart(t *testing.T) {
	store := memory.NewStore()
	synced := ent("task_1", "closed case", "", true)
	synced.Remote = true
	seedStore(t, store, "case-1", synced)

	gw := newFakeGateway()
	gw.seed("case-1", synced)
	gw.offline()

	e := newTestEngine(t, store, gw)
	ctx := context.Background()

	s := activate(t, e, "case-1")
	require.NoError(t, s.Delete(ctx, "task_1"))
	flush(t, s)
	s.Deactivate()
	require.True(t, gw.has("task_1"), "remote delete failed while offline")

	gw.online()
	s = activate(t, e, "case-1")
	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.List(), "pending delete outlives the session")

	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ResyncReport{Attempted: 1, Deleted: 1}, report)
	assert.False(t, gw.has("task_1"))

	owners, err := e.StoredOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"case-1"}, owners)

	s.Deactivate()
	s = activate(t, e, "case-1")
	state, ok := s.State().(engine.SessionState)
	require.True(t, ok)
	assert.Zero(t, state.Tombstones, "confirmed delete is forgotten")
}

func TestSession_LoadSkipsTombstonedEntities(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, "case-1", ent("item_1", "deleted", "", true), ent("item_2", "kept", "", true))
	require.NoError(t, store.Save(context.Background(), itemKind.TombstoneKey("case-1"), []byte(`["item_1"]`)))

	s := activate(t, newTestEngine(t, store, nil), "case-1")
	assert.Equal(t, []string{"item_2"}, ids(s.List()))

	state, ok := s.State().(engine.SessionState)
	require.True(t, ok)
	assert.Equal(t, 1, state.Tombstones)
}

func TestSession_StalePushDoesNotMarkSynced(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	gw.setHook(func(ctx context.Context, op string) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return nil
		}
		return errUnreachable
	})

	s := activate(t, newTestEngine(t, memory.NewStore(), gw), "case-1")
	ctx := context.Background()

	created, err := s.Create(ctx, item{Title: "v1"})
	require.NoError(t, err)
	<-started

	_, err = s.Update(ctx, created.ID, engine.Set(func(it *item) { it.Title = "v2" }))
	require.NoError(t, err)
	close(release)
	flush(t, s)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Data.Title)
	assert.False(t, got.Synced, "the push carried v1")
	assert.True(t, got.Remote)

	gw.online()
	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, gw.callCount("create"))
	assert.Equal(t, 2, gw.callCount("update"), "known ids are pushed as updates")

	got, err = s.Get(created.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
}

func TestSession_UpdateRecreatesWhenRemoteLostEntity(t *testing.T) {
	store := memory.NewStore()
	synced := ent("item_1", "old", "", true)
	synced.Remote = true
	seedStore(t, store, "case-1", synced)

	gw := newFakeGateway()
	s := activate(t, newTestEngine(t, store, gw), "case-1")
	ctx := context.Background()

	_, err := s.Update(ctx, "item_1", engine.MergeJSON[item]([]byte(`{"title":"new"}`)))
	require.NoError(t, err)
	flush(t, s)

	got, err := s.Get("item_1")
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.False(t, got.Remote, "not-found clears the remote flag")

	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.True(t, gw.has("item_1"))
	assert.Equal(t, 1, gw.callCount("create"))
}

func TestSession_MutationErrors(t *testing.T) {
	s := activate(t, newTestEngine(t, memory.NewStore(), nil), "case-1")
	ctx := context.Background()

	_, err := s.Create(ctx, item{})
	assert.ErrorIs(t, err, core.ErrInvalidEntity)

	_, err = s.Update(ctx, "missing", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "missing"), core.ErrNotFound)

	created, err := s.Create(ctx, item{Title: "ok"})
	require.NoError(t, err)
	_, err = s.Update(ctx, created.ID, engine.Set(func(it *item) { it.Title = "" }))
	assert.ErrorIs(t, err, core.ErrInvalidEntity)

	_, err = s.Update(ctx, created.ID, func(*item) error { return errors.New("boom") })
	assert.ErrorIs(t, err, core.ErrInvalidEntity)

	got, err := s.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Data.Title, "failed patches leave the entity unchanged")
}

func TestSession_NilGatewayIsOffline(t *testing.T) {
	s := activate(t, newTestEngine(t, memory.NewStore(), nil), "case-1")
	ctx := context.Background()

	_, err := s.Create(ctx, item{Title: "local only"})
	require.NoError(t, err)
	flush(t, s)

	assert.ErrorIs(t, s.Refresh(ctx), core.ErrOffline)
	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.ResyncReport{Attempted: 1, Failed: 1}, report)
}

func TestSession_CorruptStoreStartsEmpty(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Save(context.Background(), itemKind.Key("case-1"), []byte("{not json")))

	s := activate(t, newTestEngine(t, store, nil), "case-1")
	assert.Empty(t, s.List())

	_, err := s.Create(context.Background(), item{Title: "fresh start"})
	require.NoError(t, err)
	assert.Len(t, stored(t, store, "case-1"), 1)
}

func TestSession_LoadDeduplicates(t *testing.T) {
	store := memory.NewStore()
	older := ent("item_1", "older", "", false)
	newer := ent("item_1", "newer", "", false)
	newer.UpdatedAt = fixedNow.Add(time.Minute)
	seedStore(t, store, "case-1", newer, older)

	s := activate(t, newTestEngine(t, store, nil), "case-1")
	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "newer", list[0].Data.Title)
}

func TestSession_OwnersAreIsolated(t *testing.T) {
	store := memory.NewStore()
	e := newTestEngine(t, store, nil)
	a := activate(t, e, "case-1")
	b := activate(t, e, "case-2")

	_, err := a.Create(context.Background(), item{Title: "for case 1"})
	require.NoError(t, err)

	assert.Len(t, a.List(), 1)
	assert.Empty(t, b.List())
	assert.Equal(t, []string{"case-1", "case-2"}, e.Owners())

	owners, err := e.StoredOwners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"case-1"}, owners)
}

func TestSession_Lifecycle(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), nil)
	s := activate(t, e, "case-1")

	_, err := e.Activate(context.Background(), "case-1")
	assert.ErrorIs(t, err, core.ErrSessionActive)

	_, err = e.Activate(context.Background(), "")
	assert.Error(t, err)

	state, ok := s.State().(engine.SessionState)
	require.True(t, ok)
	assert.Equal(t, "case-1", state.Owner)
	assert.False(t, state.Closed)

	s.Deactivate()
	s.Deactivate()

	_, err = s.Create(context.Background(), item{Title: "late"})
	assert.ErrorIs(t, err, core.ErrSessionClosed)
	_, err = s.ResyncAll(context.Background())
	assert.ErrorIs(t, err, core.ErrSessionClosed)

	_, open := <-s.Events()
	for open {
		_, open = <-s.Events()
	}

	_, found := e.Session("case-1")
	assert.False(t, found)

	again, err := e.Activate(context.Background(), "case-1")
	require.NoError(t, err)
	again.Deactivate()
}

func TestSession_Events(t *testing.T) {
	gw := newFakeGateway()
	s := activate(t, newTestEngine(t, memory.NewStore(), gw), "case-1")
	ctx := context.Background()

	created, err := s.Create(ctx, item{Title: "watch me"})
	require.NoError(t, err)
	flush(t, s)
	require.NoError(t, s.Delete(ctx, created.ID))
	flush(t, s)

	assert.Equal(t, []core.EventType{
		core.EventCreate,
		core.EventPushed,
		core.EventDelete,
		core.EventPushed,
	}, drain(s))
}

func TestSession_EventsUseClock(t *testing.T) {
	s := activate(t, newTestEngine(t, memory.NewStore(), nil), "case-1")

	_, err := s.Create(context.Background(), item{Title: "stamped"})
	require.NoError(t, err)

	ev := <-s.Events()
	assert.Equal(t, core.EventCreate, ev.Type)
	assert.Equal(t, fixedNow.Unix(), ev.Timestamp)
}

func drain(s *engine.Session[item]) []core.EventType {
	var out []core.EventType
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}
