// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package view

import (
	"fmt"
	"sync"

	"github.com/tomtom215/trailkeeper/internal/aggregate"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// AggregateSource publishes replace-all day counts. *aggregate.View
// implements it.
type AggregateSource interface {
	Entries() []models.DateAggregateEntry
	Subscribe(l aggregate.Listener) func()
	Ready() <-chan struct{}
}

// DateList mirrors the day aggregate as rows.
type DateList struct {
	ready <-chan struct{}

	mu       sync.Mutex
	rows     []models.DateAggregateEntry
	replaced bool
	listener func([]models.DateAggregateEntry)
	cancel   func()
}

// NewDateList follows src until Close.
func NewDateList(src AggregateSource) *DateList {
	d := &DateList{ready: src.Ready()}
	cancel := src.Subscribe(d.replace)

	d.mu.Lock()
	d.cancel = cancel
	if !d.replaced {
		d.rows = src.Entries()
	}
	d.mu.Unlock()
	return d
}

func (d *DateList) replace(entries []models.DateAggregateEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows = entries
	d.replaced = true
	if d.listener != nil {
		d.listener(append([]models.DateAggregateEntry(nil), entries...))
	}
}

// SetListener installs a listener called with every replacement.
func (d *DateList) SetListener(fn func([]models.DateAggregateEntry)) {
	d.mu.Lock()
	d.listener = fn
	d.mu.Unlock()
}

// Ready is closed once the aggregate has published its first result.
func (d *DateList) Ready() <-chan struct{} {
	return d.ready
}

// NumberOfRows returns the number of days.
func (d *DateList) NumberOfRows() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

// Row returns the entry at index.
func (d *DateList) Row(index int) (models.DateAggregateEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.rows) {
		return models.DateAggregateEntry{}, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, index, len(d.rows))
	}
	return d.rows[index], nil
}

// Rows returns a copy of all entries.
func (d *DateList) Rows() []models.DateAggregateEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.DateAggregateEntry(nil), d.rows...)
}

// Close stops following the aggregate.
func (d *DateList) Close() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.listener = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
