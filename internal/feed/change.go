// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package feed

import (
	"github.com/tomtom215/trailkeeper/internal/models"
)

// ChangeType distinguishes the three notifications a subscription emits.
type ChangeType int

const (
	// ChangeInitial carries the first snapshot. Its Insertions cover every
	// index, so applying it to an empty list reproduces Results.
	ChangeInitial ChangeType = iota

	// ChangeUpdate carries the index sets between two consecutive snapshots.
	ChangeUpdate

	// ChangeError is terminal; no notification follows it.
	ChangeError
)

func (t ChangeType) String() string {
	switch t {
	case ChangeInitial:
		return "initial"
	case ChangeUpdate:
		return "update"
	case ChangeError:
		return "error"
	default:
		return "unknown"
	}
}

// Change is one notification delivered to a subscription handler.
//
// Deletions index the previous snapshot. Insertions and Modifications index
// Results, the new snapshot. All three are ascending.
type Change struct {
	Type    ChangeType
	Version uint64

	Results       []models.LocationRecord
	Deletions     []int
	Insertions    []int
	Modifications []int

	Err error
}

// Empty reports whether an update changes nothing.
func (c *Change) Empty() bool {
	return len(c.Deletions) == 0 && len(c.Insertions) == 0 && len(c.Modifications) == 0
}

// Applier receives the edits of a change.
type Applier interface {
	Delete(index int)
	Insert(index int, rec *models.LocationRecord)
	Modify(index int, rec *models.LocationRecord)
}

// Apply replays c onto a consumer list holding the previous snapshot:
// deletions from the highest index down, then insertions from the lowest
// index up, then modifications. Any other order corrupts indices.
func Apply(c *Change, a Applier) {
	for i := len(c.Deletions) - 1; i >= 0; i-- {
		a.Delete(c.Deletions[i])
	}
	for _, j := range c.Insertions {
		a.Insert(j, &c.Results[j])
	}
	for _, j := range c.Modifications {
		a.Modify(j, &c.Results[j])
	}
}

// ApplyTo is Apply for a plain slice of rows projected from records.
func ApplyTo[T any](rows []T, c *Change, project func(*models.LocationRecord) T) []T {
	a := &sliceApplier[T]{rows: rows, project: project}
	Apply(c, a)
	return a.rows
}

type sliceApplier[T any] struct {
	rows    []T
	project func(*models.LocationRecord) T
}

func (s *sliceApplier[T]) Delete(i int) {
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
}

func (s *sliceApplier[T]) Insert(i int, rec *models.LocationRecord) {
	var zero T
	s.rows = append(s.rows, zero)
	copy(s.rows[i+1:], s.rows[i:])
	s.rows[i] = s.project(rec)
}

func (s *sliceApplier[T]) Modify(i int, rec *models.LocationRecord) {
	s.rows[i] = s.project(rec)
}

// initialChange wraps a first snapshot.
func initialChange(snap []models.LocationRecord) Change {
	ins := make([]int, len(snap))
	for i := range ins {
		ins[i] = i
	}
	return Change{Type: ChangeInitial, Results: snap, Insertions: ins}
}
