// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

/*
Package models defines the data shared by the store, the change feed and the
API.

  - Fix: one platform location sample, with optional accuracy, altitude,
    course and speed
  - LocationRecord: a persisted Fix with its identity, write time and
    sequence number
  - DateAggregateEntry: a calendar day key and the number of records created
    on it
  - TimeRange: a half-open [From, To) interval

Records are ordered by CreatedDate, then Timestamp, then Seq. Every view of
the log uses that order, so positions in a change set are stable across
subscribers. Day keys are yyyyMMdd strings computed in a caller supplied
time zone.
*/
package models
