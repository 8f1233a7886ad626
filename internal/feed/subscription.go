// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package feed

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
	"github.com/tomtom215/trailkeeper/internal/store"
)

// ErrObservationFailed wraps the cause of a ChangeError.
var ErrObservationFailed = errors.New("observation failed")

// Source is a live result set. *store.Results implements it.
type Source interface {
	Observe(l store.Listener) ([]models.LocationRecord, func(), error)
	Matches(rec *models.LocationRecord) bool
}

// Handler receives changes for one subscription.
type Handler func(Change)

// Engine creates subscriptions whose handlers run on its dispatcher.
type Engine struct {
	dispatcher Dispatcher
}

// NewEngine returns an engine using d, or Inline if d is nil.
func NewEngine(d Dispatcher) *Engine {
	if d == nil {
		d = Inline{}
	}
	return &Engine{dispatcher: d}
}

// Subscription is a live observation of one Source. Mutations are queued
// without bound and turned into changes on a goroutine owned by the
// subscription, so the store writer never waits on consumers.
type Subscription struct {
	id         string
	src        Source
	handler    Handler
	dispatcher Dispatcher

	cancelSrc func()

	qmu    sync.Mutex
	queue  []store.Mutation
	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	closed bool

	// hmu is held for the closed check and the handler call, so Close can
	// wait out a handler that is already running. owner is the goroutine
	// inside the handler, zero when idle.
	hmu   sync.Mutex
	owner atomic.Uint64

	closeOnce sync.Once
}

// Observe subscribes handler to src. The first notification is a
// ChangeInitial carrying the current snapshot. If the source cannot be
// observed the first and only notification is a ChangeError.
func (e *Engine) Observe(src Source, handler Handler) *Subscription {
	s := &Subscription{
		id:         uuid.NewString(),
		src:        src,
		handler:    handler,
		dispatcher: e.dispatcher,
		signal:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	snap, cancel, err := src.Observe(s.enqueue)
	if err != nil {
		s.cancelSrc = func() {}
		go s.fail(err, 0)
		return s
	}
	s.cancelSrc = cancel
	feedSubscriptionsActive.Inc()
	go s.run(snap)
	return s
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Done is closed when the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the subscription. Once Close returns no handler call for the
// subscription is running or will start. Close is idempotent and may be
// called from inside the handler, in which case it does not wait for that
// call to finish.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancelSrc()
		close(s.stop)
	})

	if id := s.owner.Load(); id != 0 && id == goroutineID() {
		return
	}
	s.hmu.Lock()
	s.hmu.Unlock() //nolint:staticcheck // barrier: wait for a running handler
}

func (s *Subscription) enqueue(m store.Mutation) {
	s.qmu.Lock()
	s.queue = append(s.queue, m)
	s.qmu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) drain() []store.Mutation {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *Subscription) run(snap []models.LocationRecord) {
	defer close(s.done)
	defer feedSubscriptionsActive.Dec()

	s.deliver(initialChange(snap))
	current := snap

	for {
		select {
		case <-s.stop:
			return
		case <-s.signal:
		}

		for _, m := range s.drain() {
			if m.Err != nil {
				s.cancelSrc()
				s.deliverError(m.Err, m.Version)
				return
			}
			next, touched := s.advance(current, &m)
			if !touched {
				continue
			}
			c := Diff(current, next)
			if c.Empty() {
				continue
			}
			c.Version = m.Version
			current = next
			s.deliver(c)
		}
	}
}

// advance applies a mutation to the snapshot. It reports false when the
// mutation does not touch this result set.
func (s *Subscription) advance(current []models.LocationRecord, m *store.Mutation) ([]models.LocationRecord, bool) {
	var removed map[string]bool
	for i := range m.Deleted {
		if s.src.Matches(&m.Deleted[i]) {
			if removed == nil {
				removed = make(map[string]bool)
			}
			removed[m.Deleted[i].ID] = true
		}
	}

	present := make(map[string]bool, len(current))
	for i := range current {
		present[current[i].ID] = true
	}
	var added []models.LocationRecord
	for i := range m.Inserted {
		rec := &m.Inserted[i]
		if s.src.Matches(rec) && !present[rec.ID] {
			added = append(added, *rec)
		}
	}
	if len(removed) == 0 && len(added) == 0 {
		return current, false
	}

	next := make([]models.LocationRecord, 0, len(current)+len(added))
	for i := range current {
		if !removed[current[i].ID] {
			next = append(next, current[i])
		}
	}
	next = append(next, added...)
	slices.SortStableFunc(next, func(a, b models.LocationRecord) int {
		switch {
		case a.Less(&b):
			return -1
		case b.Less(&a):
			return 1
		default:
			return 0
		}
	})
	return next, true
}

// deliver hands c to the dispatcher. The closed check and the handler run
// under hmu on the dispatcher's context.
func (s *Subscription) deliver(c Change) {
	s.dispatcher.Dispatch(func() {
		s.hmu.Lock()
		defer s.hmu.Unlock()

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		s.owner.Store(goroutineID())
		defer s.owner.Store(0)
		feedChangesDelivered.WithLabelValues(c.Type.String()).Inc()
		s.handler(c)
	})
}

func (s *Subscription) deliverError(cause error, version uint64) {
	logging.Failure(logging.KindObservationFailure, cause).
		Str("subscription_id", s.id).
		Msg("Subscription terminated")
	s.deliver(Change{
		Type:    ChangeError,
		Version: version,
		Err:     errors.Join(ErrObservationFailed, cause),
	})
}

// fail reports an Observe failure on a fresh subscription.
func (s *Subscription) fail(cause error, version uint64) {
	defer close(s.done)
	s.deliverError(cause, version)
}
