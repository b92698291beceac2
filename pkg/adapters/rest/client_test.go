package rest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/casesync/pkg/adapters/memory"
	"github.com/aretw0/casesync/pkg/adapters/rest"
	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
	"github.com/aretw0/casesync/pkg/remote"
	"github.com/aretw0/casesync/pkg/tasks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T) (*remote.Server, *rest.Client[tasks.Task]) {
	t.Helper()
	srv := remote.New(remote.Config{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, rest.New[tasks.Task](ts.URL+"/", "tasks", rest.WithHTTPClient(ts.Client()))
}

func task(id, title string) core.Entity[tasks.Task] {
	ts := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	return core.Entity[tasks.Task]{
		ID:        id,
		OwnerID:   "case-1",
		Data:      tasks.Task{Title: title, DueDate: "2025-01-10"},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func TestClient_CRUD(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	items, err := c.List(ctx, "case-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, c.Create(ctx, "case-1", task("task_1", "T1")))
	require.NoError(t, c.Create(ctx, "case-1", task("task_1", "T1 retried")), "create is an upsert")

	items, err = c.List(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "task_1", items[0].ID)
	assert.Equal(t, "case-1", items[0].OwnerID)
	assert.Equal(t, "T1 retried", items[0].Data.Title)
	assert.Equal(t, "2025-01-10", items[0].Data.DueDate)

	require.NoError(t, c.Update(ctx, "task_1", task("task_1", "T1 edited")))
	items, err = c.List(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "T1 edited", items[0].Data.Title)

	require.NoError(t, c.Delete(ctx, "task_1"))
	items, err = c.List(ctx, "case-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_NotFound(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Update(ctx, "task_9", task("task_9", "ghost")), core.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "task_9"), core.ErrNotFound)
}

func TestClient_Offline(t *testing.T) {
	srv, c := setup(t)
	srv.SetOffline(true)

	_, err := c.List(context.Background(), "case-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"items":[{"id":`))
	}))
	t.Cleanup(ts.Close)

	c := rest.New[tasks.Task](ts.URL, "tasks")
	_, err := c.List(context.Background(), "case-1")
	assert.ErrorIs(t, err, core.ErrMalformedSnapshot)
}

func TestClient_RemoteFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
	}))
	t.Cleanup(ts.Close)

	c := rest.New[tasks.Task](ts.URL, "tasks")
	err := c.Create(context.Background(), "case-1", task("task_1", "T1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

// The offline scenario end to end: a task created while the remote is down
// stays pending and is synced exactly once by a resync.
func TestClient_EngineOfflineThenResync(t *testing.T) {
	srv, c := setup(t)
	srv.SetOffline(true)

	e := tasks.NewEngine(memory.NewStore(), c, engine.WithPacing(0))
	t.Cleanup(e.Close)
	s, err := e.Activate(context.Background(), "case-1")
	require.NoError(t, err)
	<-s.Refreshed()
	ctx := context.Background()

	t1, err := s.Create(ctx, tasks.Task{Title: "T1", DueDate: "2025-01-10"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	got, err := s.Get(t1.ID)
	require.NoError(t, err)
	assert.False(t, got.Synced)

	srv.SetOffline(false)
	report, err := s.ResyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, srv.Count("tasks", "case-1"))

	require.NoError(t, s.Refresh(ctx))
	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, t1.ID, list[0].ID)
	assert.True(t, list[0].Synced)
	assert.Equal(t, "T1", list[0].Data.Title)
}
