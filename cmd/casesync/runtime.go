package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/aretw0/casesync"
	eventsource "github.com/aretw0/casesync/pkg/adapters/lifecycle"
	"github.com/aretw0/casesync/pkg/core"
	"github.com/aretw0/casesync/pkg/engine"
	"github.com/aretw0/casesync/pkg/notes"
	"github.com/aretw0/casesync/pkg/tasks"
)

// flushTimeout bounds how long a command waits for its pushes before exiting.
const flushTimeout = 15 * time.Second

// storePath returns --store, or .casesync under the project root (or the
// working directory when no root is found).
func storePath() string {
	if p := viper.GetString("store"); p != "" {
		return p
	}
	wd, err := os.Getwd()
	if err != nil {
		return ".casesync"
	}
	if root, err := casesync.FindRoot(wd); err == nil {
		wd = root
	}
	return filepath.Join(wd, ".casesync")
}

func runtimeOptions() []casesync.Option {
	opts := []casesync.Option{
		casesync.WithAdapter(viper.GetString("adapter")),
		casesync.WithRemote(viper.GetString("remote")),
		casesync.WithLogger(slog.Default()),
		// The CLI works on real data even when launched through `go run`.
		casesync.WithDevSafety(false),
	}
	if d := viper.GetDuration("pacing"); d > 0 {
		opts = append(opts, casesync.WithPacing(d))
	}
	if d := viper.GetDuration("push-timeout"); d > 0 {
		opts = append(opts, casesync.WithPushTimeout(d))
	}
	return opts
}

func openRuntime[T any](kind core.Kind[T]) (*casesync.Runtime[T], error) {
	return casesync.Open(kind, storePath(), runtimeOptions()...)
}

func requireOwner() string {
	owner := viper.GetString("owner")
	if owner == "" {
		fatal("Missing owner", fmt.Errorf("set --owner or CASESYNC_OWNER"))
	}
	return owner
}

// withSession opens the runtime, activates owner, waits for the activation
// merge, runs fn and then waits for pending pushes before deactivating.
func withSession[T any](kind core.Kind[T], owner string, fn func(ctx context.Context, s *engine.Session[T]) error) error {
	rt, err := openRuntime(kind)
	if err != nil {
		return fmt.Errorf("open %s store: %w", kind.Resource, err)
	}
	defer rt.Close()

	ctx := context.Background()
	s, err := rt.Activate(ctx, owner)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	src := eventsource.NewSource(s.Events())
	if err := src.Start(ctx); err == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range src.Events() {
				slog.Debug("session event", "event", ev.String())
			}
		}()
	}
	defer wg.Wait()
	defer s.Deactivate()

	<-s.Refreshed()
	if err := fn(ctx, s); err != nil {
		return err
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := s.Flush(flushCtx); err != nil {
		slog.Warn("some pushes did not finish; entities stay pending", "error", err)
	}
	return nil
}

// dispatch runs the notes or tasks variant of a command, following --kind.
func dispatch(onNotes func() error, onTasks func() error) {
	var err error
	switch kind := viper.GetString("kind"); kind {
	case notes.Kind.Resource, notes.Kind.Name:
		err = onNotes()
	case tasks.Kind.Resource, tasks.Kind.Name:
		err = onTasks()
	default:
		err = fmt.Errorf("unknown kind %q (want notes or tasks)", kind)
	}
	if err != nil {
		fatal("Error", err)
	}
}
