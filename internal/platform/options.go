package platform

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS     = "fs"
	AdapterBadger = "badger"
	AdapterSQLite = "sqlite"
	AdapterMemory = "memory"
)

// options holds the internal configuration of a runtime.
type options struct {
	store      core.Store
	adapter    string
	logger     *slog.Logger
	remote     string
	httpClient *http.Client
	readOnly   bool
	mustExist  bool
	forceTemp  bool
	devSafety  bool
	engineOpts []engine.Option
}

// Option defines a functional option for configuring a runtime.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter:   AdapterFS,
		devSafety: true,
	}
}

// WithLogger sets the logger shared by the store and the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
		o.engineOpts = append(o.engineOpts, engine.WithLogger(logger))
	}
}

// WithAdapter selects the Local Store by name: "fs" (default), "badger",
// "sqlite" or "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithStore injects a ready Local Store. The adapter name is then ignored.
func WithStore(store core.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRemote sets the base URL of the remote service. Without it the engine
// runs offline and every entity stays pending.
func WithRemote(baseURL string) Option {
	return func(o *options) {
		o.remote = baseURL
	}
}

// WithHTTPClient sets the client used to reach the remote.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithReadOnly opens the fs store in read-only mode. Mutations still apply in
// memory but are not persisted.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithMustExist requires the store directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithForceTemp re-roots the store path under the system temp directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithDevSafety controls the sandbox used under `go run`/`go test`: by
// default those runs keep their data under the temp directory.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithPacing sets the delay between pushes during ResyncAll.
func WithPacing(d time.Duration) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithPacing(d))
	}
}

// WithPushTimeout bounds every remote call.
func WithPushTimeout(d time.Duration) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithPushTimeout(d))
	}
}

// WithEventBuffer sets the size of each session's event buffer.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithEventBuffer(size))
	}
}

// WithRefreshOnActivate controls the background merge started on activation.
func WithRefreshOnActivate(enabled bool) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithRefreshOnActivate(enabled))
	}
}

// WithClock replaces time.Now (useful for testing).
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, engine.WithClock(clock))
	}
}
