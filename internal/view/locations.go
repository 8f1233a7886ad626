// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

// Package view holds the consumer-facing read models: a day-scoped list
// of locations kept current by applying feed changes, and the list of
// days with their record counts.
package view

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/trailkeeper/internal/feed"
	"github.com/tomtom215/trailkeeper/internal/models"
	"github.com/tomtom215/trailkeeper/internal/store"
)

var (
	// ErrRowOutOfRange is returned by Row for an index past the end.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrListClosed is returned by SetDay after Close.
	ErrListClosed = errors.New("location list closed")
)

// RangeSource opens live result sets for a timestamp range.
// *store.LogStore implements it.
type RangeSource interface {
	FetchRange(from, to time.Time) *store.Results
}

// LocationUpdate is passed to a LocationList listener after each change
// has been applied. Rows is the list as it now stands.
type LocationUpdate struct {
	Day    string
	Change feed.Change
	Rows   []models.LocationRow
}

// LocationListener observes a LocationList. It runs with the list locked
// and must not call back into it.
type LocationListener func(u LocationUpdate)

// LocationList shows the locations recorded on one calendar day.
type LocationList struct {
	engine *feed.Engine
	source RangeSource
	loc    *time.Location

	mu       sync.Mutex
	closed   bool
	gen      uint64
	day      string
	sub      *feed.Subscription
	rows     []models.LocationRow
	version  uint64
	err      error
	listener LocationListener
}

// NewLocationList creates an empty list. Day keys are interpreted in loc.
func NewLocationList(engine *feed.Engine, source RangeSource, loc *time.Location) *LocationList {
	if loc == nil {
		loc = time.Local
	}
	return &LocationList{engine: engine, source: source, loc: loc}
}

// SetListener installs the change listener. Pass nil to remove it.
func (l *LocationList) SetListener(fn LocationListener) {
	l.mu.Lock()
	l.listener = fn
	l.mu.Unlock()
}

// SetDay switches the list to the day identified by key (yyyyMMdd). The
// previous subscription is torn down before the new one starts, and once
// SetDay returns no listener call refers to the previous day.
func (l *LocationList) SetDay(key string) error {
	rng, err := models.DayRange(key, l.loc)
	if err != nil {
		return fmt.Errorf("select day: %w", err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrListClosed
	}
	l.gen++
	gen := l.gen
	old := l.sub
	l.sub = nil
	l.day = key
	l.rows = nil
	l.version = 0
	l.err = nil
	l.mu.Unlock()

	if old != nil {
		old.Close()
	}

	sub := l.engine.Observe(l.source.FetchRange(rng.From, rng.To), func(c feed.Change) {
		l.apply(gen, c)
	})

	l.mu.Lock()
	if l.gen == gen {
		l.sub = sub
		sub = nil
	}
	l.mu.Unlock()

	// A concurrent SetDay already moved on.
	if sub != nil {
		sub.Close()
	}
	return nil
}

func (l *LocationList) apply(gen uint64, c feed.Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}

	switch c.Type {
	case feed.ChangeInitial:
		l.rows = feed.ApplyTo(make([]models.LocationRow, 0, len(c.Results)), &c, project)
	case feed.ChangeUpdate:
		l.rows = feed.ApplyTo(l.rows, &c, project)
	case feed.ChangeError:
		l.err = c.Err
	}
	l.version = c.Version

	if l.listener != nil {
		l.listener(LocationUpdate{
			Day:    l.day,
			Change: c,
			Rows:   append([]models.LocationRow(nil), l.rows...),
		})
	}
}

func project(rec *models.LocationRecord) models.LocationRow {
	return rec.Row()
}

// Day returns the selected day key, empty before the first SetDay.
func (l *LocationList) Day() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.day
}

// NumberOfSections is always one: the selected day.
func (l *LocationList) NumberOfSections() int { return 1 }

// NumberOfRows returns the row count of section.
func (l *LocationList) NumberOfRows(section int) int {
	if section != 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// Row returns the row at index.
func (l *LocationList) Row(index int) (models.LocationRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.rows) {
		return models.LocationRow{}, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, index, len(l.rows))
	}
	return l.rows[index], nil
}

// Rows returns a copy of all rows.
func (l *LocationList) Rows() []models.LocationRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.LocationRow(nil), l.rows...)
}

// Version is the store version of the last applied change.
func (l *LocationList) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Err returns the terminal error of the current subscription, if any.
func (l *LocationList) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close ends the current subscription. Later SetDay calls fail with
// ErrListClosed.
func (l *LocationList) Close() {
	l.mu.Lock()
	l.closed = true
	l.gen++
	old := l.sub
	l.sub = nil
	l.listener = nil
	l.mu.Unlock()

	if old != nil {
		old.Close()
	}
}
