// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package feed

import (
	"slices"

	"github.com/tomtom215/trailkeeper/internal/models"
)

// Diff computes the update turning old into next, matching records by ID.
//
// Records present in both keep their position when possible. If their
// relative order changed, the fewest records needed to restore a common
// order are reported as a deletion plus an insertion. A record kept in
// place whose fields differ is a modification.
func Diff(old, next []models.LocationRecord) Change {
	inNext := make(map[string]int, len(next))
	for j := range next {
		inNext[next[j].ID] = j
	}

	var commonOld, commonNew []int
	for i := range old {
		if j, ok := inNext[old[i].ID]; ok {
			commonOld = append(commonOld, i)
			commonNew = append(commonNew, j)
		}
	}
	keep := increasingRun(commonNew)

	dropped := make(map[int]bool)
	retained := make(map[int]bool, len(commonNew))
	c := Change{Type: ChangeUpdate, Results: next}
	for k, i := range commonOld {
		j := commonNew[k]
		if !keep[k] {
			dropped[i] = true
			continue
		}
		retained[j] = true
		if !old[i].Equal(&next[j]) {
			c.Modifications = append(c.Modifications, j)
		}
	}
	slices.Sort(c.Modifications)

	for i := range old {
		if _, ok := inNext[old[i].ID]; !ok || dropped[i] {
			c.Deletions = append(c.Deletions, i)
		}
	}
	for j := range next {
		if !retained[j] {
			c.Insertions = append(c.Insertions, j)
		}
	}
	return c
}

// increasingRun marks a longest strictly increasing subsequence of seq.
func increasingRun(seq []int) []bool {
	keep := make([]bool, len(seq))
	if len(seq) == 0 {
		return keep
	}

	// tails[k] is the index in seq of the smallest tail of a run of length k+1.
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for i, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		} else {
			prev[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		keep[i] = true
	}
	return keep
}
