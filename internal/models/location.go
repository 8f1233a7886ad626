// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package models

import (
	"time"
)

// Unavailable marks a numeric fix field the sensing platform could not supply.
const Unavailable = -1.0

// Fix is a single position sample as reported by the sensing platform.
//
// Accuracy, course and speed fields use Unavailable (-1.0) when the platform
// has no value. FloorLevel is nil when the floor is unknown.
type Fix struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	VerticalAccuracy   float64   `json:"vertical_accuracy"`
	Course             float64   `json:"course"`
	CourseAccuracy     float64   `json:"course_accuracy"`
	Speed              float64   `json:"speed"`
	SpeedAccuracy      float64   `json:"speed_accuracy"`
	FloorLevel         *int32    `json:"floor_level,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewFix returns a fix at the given position with every optional measurement
// marked Unavailable.
func NewFix(lat, lon float64, ts time.Time) Fix {
	return Fix{
		Latitude:           lat,
		Longitude:          lon,
		HorizontalAccuracy: Unavailable,
		VerticalAccuracy:   Unavailable,
		Course:             Unavailable,
		CourseAccuracy:     Unavailable,
		Speed:              Unavailable,
		SpeedAccuracy:      Unavailable,
		Timestamp:          ts,
	}
}

// HasHorizontalAccuracy reports whether the horizontal accuracy is known.
// A negative value means the latitude and longitude are invalid.
func (f Fix) HasHorizontalAccuracy() bool { return f.HorizontalAccuracy >= 0 }

// HasVerticalAccuracy reports whether the altitude is meaningful.
func (f Fix) HasVerticalAccuracy() bool { return f.VerticalAccuracy >= 0 }

// HasCourse reports whether a heading was supplied.
func (f Fix) HasCourse() bool { return f.Course >= 0 }

// HasSpeed reports whether a ground speed was supplied.
func (f Fix) HasSpeed() bool { return f.Speed >= 0 }

// LocationRecord is a persisted Fix.
//
// ID identifies the record for the lifetime of the store. Seq is the store's
// insertion sequence and only breaks ties between records sharing
// CreatedDate and Timestamp. CreatedDate is the wall-clock time the writer
// persisted the batch the record belonged to.
type LocationRecord struct {
	ID  string `json:"id"`
	Seq uint64 `json:"seq"`
	Fix
	CreatedDate time.Time `json:"created_date"`
}

// Less reports whether r sorts before o in the canonical record order:
// CreatedDate ascending, then Timestamp ascending, then insertion sequence.
func (r *LocationRecord) Less(o *LocationRecord) bool {
	if !r.CreatedDate.Equal(o.CreatedDate) {
		return r.CreatedDate.Before(o.CreatedDate)
	}
	if !r.Timestamp.Equal(o.Timestamp) {
		return r.Timestamp.Before(o.Timestamp)
	}
	return r.Seq < o.Seq
}

// Equal reports whether two records carry identical field values.
func (r *LocationRecord) Equal(o *LocationRecord) bool {
	if r.ID != o.ID || r.Seq != o.Seq {
		return false
	}
	if !r.CreatedDate.Equal(o.CreatedDate) || !r.Timestamp.Equal(o.Timestamp) {
		return false
	}
	if (r.FloorLevel == nil) != (o.FloorLevel == nil) {
		return false
	}
	if r.FloorLevel != nil && *r.FloorLevel != *o.FloorLevel {
		return false
	}
	return r.Latitude == o.Latitude &&
		r.Longitude == o.Longitude &&
		r.Altitude == o.Altitude &&
		r.HorizontalAccuracy == o.HorizontalAccuracy &&
		r.VerticalAccuracy == o.VerticalAccuracy &&
		r.Course == o.Course &&
		r.CourseAccuracy == o.CourseAccuracy &&
		r.Speed == o.Speed &&
		r.SpeedAccuracy == o.SpeedAccuracy
}

// LocationRow is the per-row projection presented to list consumers.
type LocationRow struct {
	ID          string    `json:"id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Timestamp   time.Time `json:"timestamp"`
	CreatedDate time.Time `json:"created_date"`
}

// Row projects the record to its list row.
func (r *LocationRecord) Row() LocationRow {
	return LocationRow{
		ID:          r.ID,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Timestamp:   r.Timestamp,
		CreatedDate: r.CreatedDate,
	}
}
