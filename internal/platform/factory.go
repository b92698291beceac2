package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/casesync/pkg/adapters/badger"
	"github.com/aretw0/casesync/pkg/adapters/fs"
	"github.com/aretw0/casesync/pkg/adapters/memory"
	"github.com/aretw0/casesync/pkg/adapters/rest"
	"github.com/aretw0/casesync/pkg/adapters/sqlite"
	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
)

// Runtime is an Engine together with the Local Store it owns.
type Runtime[T any] struct {
	*engine.Engine[T]
	store core.Store
}

// Store returns the Local Store of the runtime.
func (r *Runtime[T]) Store() core.Store {
	return r.store
}

// Close deactivates every session and closes the Local Store.
func (r *Runtime[T]) Close() error {
	r.Engine.Close()
	return r.store.Close()
}

// Open wires a Local Store, an optional REST gateway and an Engine for kind.
// The uri is adapter-specific: a directory for "fs" and "badger", a database
// file for "sqlite", ignored for "memory".
func Open[T any](kind core.Kind[T], uri string, opts ...Option) (*Runtime[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = OpenStore(uri, opts...)
		if err != nil {
			return nil, err
		}
	}

	var gateway core.Gateway[T]
	if o.remote != "" {
		gateway = rest.New[T](o.remote, kind.Resource, rest.WithHTTPClient(o.httpClient))
	}

	return &Runtime[T]{
		Engine: engine.New(kind, store, gateway, o.engineOpts...),
		store:  store,
	}, nil
}

// OpenStore opens the Local Store selected by the options.
func OpenStore(uri string, opts ...Option) (core.Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.store != nil {
		return o.store, nil
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.adapter == AdapterMemory {
		return memory.NewStore(), nil
	}
	if o.adapter == AdapterSQLite && uri == sqlite.MemoryPath {
		return sqlite.Open(uri)
	}

	// Never let dev runs touch real data unless explicitly asked to.
	bypassSafety := o.readOnly || !o.devSafety
	path := ResolveStorePath(uri, o.forceTemp || (IsDevRun() && !bypassSafety))
	if path != uri {
		logger.Debug("store path re-rooted (dev sandbox)", "requested", uri, "path", path)
	}

	switch o.adapter {
	case AdapterFS:
		store := fs.NewStore(fs.Config{
			Path:      path,
			MustExist: o.mustExist,
			ReadOnly:  o.readOnly,
			Logger:    logger,
		})
		if err := store.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	case AdapterBadger:
		return badger.Open(badger.Options{Path: path})
	case AdapterSQLite:
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "casesync.db")
		}
		return sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}
