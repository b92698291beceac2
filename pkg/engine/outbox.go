package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/casesync/pkg/core"
)

type pushOp int

const (
	opSave pushOp = iota
	opDelete
)

func (o pushOp) String() string {
	if o == opDelete {
		return "delete"
	}
	return "save"
}

type pushJob[T any] struct {
	op     pushOp
	id     string
	entity core.Entity[T]
	rev    uint64
}

type pushResult[T any] struct {
	job pushJob[T]
	err error
	// done is closed by the applier once the result has been applied.
	done chan struct{}
}

// outbox is an unbounded FIFO of pending pushes drained by one worker.
type outbox[T any] struct {
	mu     sync.Mutex
	jobs   []pushJob[T]
	signal chan struct{}
}

func newOutbox[T any]() *outbox[T] {
	return &outbox[T]{signal: make(chan struct{}, 1)}
}

func (o *outbox[T]) push(j pushJob[T]) {
	o.mu.Lock()
	o.jobs = append(o.jobs, j)
	o.mu.Unlock()
	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox[T]) pop() (pushJob[T], bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.jobs) == 0 {
		return pushJob[T]{}, false
	}
	j := o.jobs[0]
	o.jobs[0] = pushJob[T]{}
	o.jobs = o.jobs[1:]
	return j, true
}

func (o *outbox[T]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.jobs)
}

func (s *Session[T]) enqueueLocked(j pushJob[T]) {
	s.beginLocked()
	s.outbox.push(j)
}

// runOutbox pushes queued jobs one at a time, in mutation order.
func (s *Session[T]) runOutbox(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.outbox.signal:
		}
		for {
			j, ok := s.outbox.pop()
			if !ok {
				break
			}
			err := s.push(ctx, j)
			if !s.submit(ctx, pushResult[T]{job: j, err: err}) {
				return nil
			}
		}
	}
}

// submit hands a result to the applier. It reports false once the session
// is shutting down.
func (s *Session[T]) submit(ctx context.Context, r pushResult[T]) bool {
	select {
	case s.results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// runApplier is the only place push outcomes change the collection.
func (s *Session[T]) runApplier(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-s.results:
			s.apply(context.WithoutCancel(ctx), r)
			if r.done != nil {
				close(r.done)
			}
		}
	}
}

func (s *Session[T]) apply(ctx context.Context, r pushResult[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.endLocked()

	id := r.job.id
	if r.job.op == opDelete {
		if r.err == nil || errors.Is(r.err, core.ErrNotFound) {
			delete(s.tombs, id)
			delete(s.acked, id)
			s.persistTombstonesLocked(ctx)
			s.emitLocked(core.EventPushed, id, nil)
			return
		}
		s.emitLocked(core.EventPushFailed, id, r.err)
		return
	}

	e, ok := s.items[id]
	if !ok {
		// Deleted locally while the push was in flight.
		return
	}

	if r.err != nil {
		if errors.Is(r.err, core.ErrNotFound) && e.Remote {
			e.Remote = false
			s.items[id] = e
			s.persistLocked(ctx)
		}
		s.emitLocked(core.EventPushFailed, id, r.err)
		return
	}

	e.Remote = true
	if s.revs[id] == r.job.rev {
		e.Synced = true
	}
	s.items[id] = e
	s.persistLocked(ctx)
	s.emitLocked(core.EventPushed, id, nil)
}

// push performs one remote call for a job. It never panics and never blocks
// longer than the push timeout.
func (s *Session[T]) push(ctx context.Context, j pushJob[T]) error {
	if j.op == opDelete {
		err := s.call(ctx, "delete", func(ctx context.Context) error {
			return s.engine.gateway.Delete(ctx, j.id)
		})
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			s.log.Warn("remote delete failed", "id", j.id, "error", err)
		}
		return err
	}

	s.mu.Lock()
	update := s.acked[j.id] > 0
	if cur, ok := s.items[j.id]; ok && cur.Remote {
		update = true
	}
	s.mu.Unlock()

	payload := j.entity
	payload.Synced = true

	var err error
	if update {
		err = s.call(ctx, "update", func(ctx context.Context) error {
			return s.engine.gateway.Update(ctx, j.id, payload)
		})
		if errors.Is(err, core.ErrNotFound) {
			s.mu.Lock()
			delete(s.acked, j.id)
			s.mu.Unlock()
		}
	} else {
		err = s.call(ctx, "create", func(ctx context.Context) error {
			return s.engine.gateway.Create(ctx, s.ownerID, payload)
		})
	}
	if err != nil {
		s.log.Warn("push failed, entity stays pending", "id", j.id, "op", j.op, "error", err)
		return err
	}
	s.markAcked(j.id)
	return nil
}

func (s *Session[T]) markAcked(id string) {
	s.mu.Lock()
	s.ackGen++
	s.acked[id] = s.ackGen
	s.mu.Unlock()
}

// call is the failure boundary around every gateway operation: offline
// gateways, timeouts and panics all come back as errors. A gateway that
// ignores its context is abandoned once the timeout expires.
func (s *Session[T]) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	resource := s.engine.kind.Resource
	if s.engine.gateway == nil {
		GatewayCallsTotal.WithLabelValues(resource, op, "offline").Inc()
		return core.ErrOffline
	}

	ctx, cancel := context.WithTimeout(ctx, s.engine.cfg.PushTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("gateway %s panicked: %v", op, r)
			}
		}()
		errCh <- fn(ctx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = fmt.Errorf("gateway %s: %w", op, ctx.Err())
	}

	GatewayCallDuration.WithLabelValues(resource, op).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	GatewayCallsTotal.WithLabelValues(resource, op, outcome).Inc()
	return err
}
