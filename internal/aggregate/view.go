// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

// Package aggregate maintains the per-day record counts.
//
// The view rescans every record after each store mutation and publishes the
// full, sorted list of DateAggregateEntry values as a replacement. Mutations
// that arrive while a rescan is running collapse into one further rescan.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/trailkeeper/internal/feed"
	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
	"github.com/tomtom215/trailkeeper/internal/store"
)

// Source is the record set the view summarizes. *store.Results implements it.
type Source interface {
	Observe(l store.Listener) ([]models.LocationRecord, func(), error)
	Snapshot(ctx context.Context) ([]models.LocationRecord, error)
}

// Listener receives each published replacement.
type Listener func(entries []models.DateAggregateEntry)

// View is the DateAggregationView. It implements suture.Service.
type View struct {
	src        Source
	loc        *time.Location
	dispatcher feed.Dispatcher

	dirty chan struct{}

	mu        sync.RWMutex
	entries   []models.DateAggregateEntry
	version   uint64
	ready     chan struct{}
	readyOnce sync.Once
	termErr   error

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// New creates a view over src with day keys computed in loc. Listeners are
// invoked through d (Inline if nil).
func New(src Source, loc *time.Location, d feed.Dispatcher) *View {
	if loc == nil {
		loc = time.Local
	}
	if d == nil {
		d = feed.Inline{}
	}
	return &View{
		src:        src,
		loc:        loc,
		dispatcher: d,
		dirty:      make(chan struct{}, 1),
		ready:      make(chan struct{}),
		listeners:  make(map[int]Listener),
	}
}

// Aggregate counts records per CreatedDate day key, sorted by key.
func Aggregate(records []models.LocationRecord, loc *time.Location) []models.DateAggregateEntry {
	counts := make(map[string]int)
	for i := range records {
		counts[models.DayKey(records[i].CreatedDate, loc)]++
	}
	out := make([]models.DateAggregateEntry, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.DateAggregateEntry{DateKey: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateKey < out[j].DateKey })
	return out
}

// Serve observes the store until ctx is done or the store closes.
func (v *View) Serve(ctx context.Context) error {
	snap, cancel, err := v.src.Observe(v.onMutation)
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			return fmt.Errorf("date aggregation: %w", suture.ErrDoNotRestart)
		}
		return fmt.Errorf("observe store: %w", err)
	}
	defer cancel()

	v.publish(Aggregate(snap, v.loc))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.dirty:
		}

		v.mu.RLock()
		termErr := v.termErr
		v.mu.RUnlock()
		if termErr != nil {
			logging.Failure(logging.KindObservationFailure, termErr).
				Str("view", "date_aggregation").
				Msg("Date aggregation stopped")
			return fmt.Errorf("date aggregation: %w", suture.ErrDoNotRestart)
		}

		recs, err := v.src.Snapshot(ctx)
		if err != nil {
			if errors.Is(err, store.ErrClosed) {
				return fmt.Errorf("date aggregation: %w", suture.ErrDoNotRestart)
			}
			logging.Failure(logging.KindObservationFailure, err).
				Str("view", "date_aggregation").
				Msg("Date aggregation rescan failed")
			continue
		}
		v.publish(Aggregate(recs, v.loc))
	}
}

// onMutation marks the view dirty. Never blocks the store writer.
func (v *View) onMutation(m store.Mutation) {
	if m.Err != nil {
		v.mu.Lock()
		v.termErr = m.Err
		v.mu.Unlock()
	}
	select {
	case v.dirty <- struct{}{}:
	default:
	}
}

func (v *View) publish(entries []models.DateAggregateEntry) {
	v.mu.Lock()
	v.entries = entries
	v.version++
	v.mu.Unlock()
	v.readyOnce.Do(func() { close(v.ready) })

	v.listenersMu.Lock()
	ls := make([]Listener, 0, len(v.listeners))
	for _, l := range v.listeners {
		ls = append(ls, l)
	}
	v.listenersMu.Unlock()

	for _, l := range ls {
		v.dispatcher.Dispatch(func() { l(entries) })
	}
}

// Entries returns the latest published aggregation. The slice must not be
// modified.
func (v *View) Entries() []models.DateAggregateEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.entries
}

// Version counts publications since start.
func (v *View) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Ready is closed after the first publication.
func (v *View) Ready() <-chan struct{} {
	return v.ready
}

// Subscribe registers l for future replacements and returns its cancel func.
func (v *View) Subscribe(l Listener) func() {
	v.listenersMu.Lock()
	v.nextID++
	id := v.nextID
	v.listeners[id] = l
	v.listenersMu.Unlock()

	return func() {
		v.listenersMu.Lock()
		delete(v.listeners, id)
		v.listenersMu.Unlock()
	}
}

// Location returns the zone used for day keys.
func (v *View) Location() *time.Location {
	return v.loc
}

// String implements fmt.Stringer for suture logging.
func (v *View) String() string {
	return "date-aggregation-view"
}
