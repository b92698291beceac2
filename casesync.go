package casesync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/casesync/internal/platform"
	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
	"github.com/aretw0/casesync/pkg/notes"
	"github.com/aretw0/casesync/pkg/tasks"
)

// --- Types ---

type (
	Note = notes.Note
	Task = tasks.Task

	// Entity is a synced record with its payload.
	Entity[T any] = core.Entity[T]

	// Session is an engine bound to one owner.
	Session[T any] = engine.Session[T]

	// Runtime is an engine plus the Local Store it owns.
	Runtime[T any] = platform.Runtime[T]

	ResyncReport = engine.ResyncReport
	Stats        = engine.Stats
	Event        = core.Event
)

// Sentinel errors.
var (
	ErrNotFound          = core.ErrNotFound
	ErrOffline           = core.ErrOffline
	ErrMalformedSnapshot = core.ErrMalformedSnapshot
	ErrSessionActive     = core.ErrSessionActive
	ErrSessionClosed     = core.ErrSessionClosed
	ErrInvalidEntity     = core.ErrInvalidEntity
)

// --- Configuration ---

// Option defines a functional option for configuring a runtime.
type Option = platform.Option

// WithLogger sets the logger for the store and the engine.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithAdapter selects the Local Store: "fs", "badger", "sqlite" or "memory".
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithStore injects a custom Local Store.
func WithStore(store core.Store) Option {
	return platform.WithStore(store)
}

// WithRemote sets the base URL of the remote service.
func WithRemote(baseURL string) Option {
	return platform.WithRemote(baseURL)
}

// WithHTTPClient sets the HTTP client used to reach the remote.
func WithHTTPClient(c *http.Client) Option {
	return platform.WithHTTPClient(c)
}

// WithPacing sets the delay between pushes during a bulk resync.
func WithPacing(d time.Duration) Option {
	return platform.WithPacing(d)
}

// WithPushTimeout bounds every remote call.
func WithPushTimeout(d time.Duration) Option {
	return platform.WithPushTimeout(d)
}

// WithEventBuffer sets the size of each session's event buffer.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithClock replaces time.Now (useful for testing).
func WithClock(clock func() time.Time) Option {
	return platform.WithClock(clock)
}

// WithReadOnly opens the store without persisting writes.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithMustExist requires the store directory to exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithForceTemp forces the store into a temporary directory.
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the temp-dir sandbox used under `go run`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// --- Factories ---

// OpenNotes opens a Notes runtime at uri.
func OpenNotes(uri string, opts ...Option) (*Runtime[Note], error) {
	return platform.Open(notes.Kind, uri, opts...)
}

// OpenTasks opens a Tasks runtime at uri.
func OpenTasks(uri string, opts ...Option) (*Runtime[Task], error) {
	return platform.Open(tasks.Kind, uri, opts...)
}

// Open opens a runtime for a custom entity kind.
func Open[T any](kind core.Kind[T], uri string, opts ...Option) (*Runtime[T], error) {
	return platform.Open(kind, uri, opts...)
}

// --- Utils ---

// FindRoot looks upwards for a .casesync store or casesync.yaml file.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}

// IsDevRun reports whether the process runs via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}
