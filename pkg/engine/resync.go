package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aretw0/casesync/pkg/core"
)

// ResyncReport summarizes one ResyncAll run.
type ResyncReport struct {
	Attempted int `json:"attempted" yaml:"attempted"`
	Synced    int `json:"synced" yaml:"synced"`
	Failed    int `json:"failed" yaml:"failed"`
	Deleted   int `json:"deleted" yaml:"deleted"`
}

// ResyncAll pushes every pending entity, one at a time with the configured
// pacing between calls, then retries unconfirmed remote deletes. Individual
// push failures are counted, not returned; the error is only set when ctx is
// cancelled or the session closes.
//
// Running it twice with no mutation in between leaves the same synced states.
func (s *Session[T]) ResyncAll(ctx context.Context) (ResyncReport, error) {
	var report ResyncReport

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return report, core.ErrSessionClosed
	}
	var jobs []pushJob[T]
	for _, e := range s.sortedLocked() {
		if !e.Synced {
			jobs = append(jobs, pushJob[T]{op: opSave, id: e.ID, entity: e, rev: s.revs[e.ID]})
		}
	}
	tombs := make([]string, 0, len(s.tombs))
	for id := range s.tombs {
		tombs = append(tombs, id)
	}
	s.mu.Unlock()
	sort.Strings(tombs)
	for _, id := range tombs {
		jobs = append(jobs, pushJob[T]{op: opDelete, id: id})
	}

	s.log.Info("resync started", "pending", len(jobs)-len(tombs), "tombstones", len(tombs))

	for i, j := range jobs {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return report, err
			}
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return report, core.ErrSessionClosed
		}
		s.beginLocked()
		s.mu.Unlock()

		report.Attempted++
		err := s.push(ctx, j)
		done := make(chan struct{})
		if !s.submit(s.ctx, pushResult[T]{job: j, err: err, done: done}) {
			return report, core.ErrSessionClosed
		}
		select {
		case <-done:
		case <-s.ctx.Done():
			return report, core.ErrSessionClosed
		}

		switch {
		case j.op == opDelete && (err == nil || errors.Is(err, core.ErrNotFound)):
			report.Deleted++
		case err == nil:
			report.Synced++
		default:
			report.Failed++
		}
	}

	if err := s.Flush(ctx); err != nil {
		return report, err
	}

	s.mu.Lock()
	s.emitLocked(core.EventResynced, "", nil)
	s.mu.Unlock()

	s.log.Info("resync finished",
		"attempted", report.Attempted,
		"synced", report.Synced,
		"failed", report.Failed,
		"deleted", report.Deleted,
	)
	return report, nil
}

func (s *Session[T]) pause(ctx context.Context) error {
	if s.engine.cfg.Pacing <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.engine.cfg.Pacing)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return core.ErrSessionClosed
	}
}
