// Package lifecycle bridges session events to aretw0/lifecycle sources.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/casesync/pkg/core"
)

type sessionSource struct {
	events <-chan core.Event
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that re-emits a session's events.
// The source ends when the session's event channel is closed (Deactivate).
func NewSource(events <-chan core.Event) lifecycle.Source {
	return &sessionSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *sessionSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *sessionSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				// core.Event satisfies lifecycle.Event through String.
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
