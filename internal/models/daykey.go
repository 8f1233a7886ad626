// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package models

import (
	"fmt"
	"time"
)

// DayKeyLayout is the eight digit calendar-day key format (yyyyMMdd).
const DayKeyLayout = "20060102"

// DateAggregateEntry is one row of the per-day record summary.
type DateAggregateEntry struct {
	DateKey string `json:"date_key"`
	Count   int    `json:"count"`
}

// TimeRange is a half-open interval [From, To).
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t lies inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// DayKey formats t as a calendar-day key in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayKeyLayout)
}

// DayRange parses a day key and returns the range from local midnight of that
// day to local midnight of the next calendar day. Across a DST change the
// range is 23 or 25 hours long.
func DayRange(key string, loc *time.Location) (TimeRange, error) {
	if loc == nil {
		loc = time.Local
	}
	if len(key) != len(DayKeyLayout) {
		return TimeRange{}, fmt.Errorf("invalid day key %q: expected %d digits", key, len(DayKeyLayout))
	}
	from, err := time.ParseInLocation(DayKeyLayout, key, loc)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid day key %q: %w", key, err)
	}
	return TimeRange{From: from, To: from.AddDate(0, 0, 1)}, nil
}
