// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

/*
Package store is the durable, append-mostly log of location records, kept in
BadgerDB.

# Key Layout

	rec:<created><timestamp><seq>      JSON LocationRecord
	ts:<timestamp><created><timestamp><seq>  empty (timestamp index)
	id:<uuid>                          rec key
	meta:seq                           last assigned sequence

Time components are big-endian nanoseconds with the sign bit flipped, so
lexicographic key order equals the canonical record order (CreatedDate,
Timestamp, Seq) and a timestamp range is one contiguous ts: scan.

# Writes

Append stores a batch in a single Badger transaction: every record in the
batch becomes visible together or not at all. All records of a batch share
the CreatedDate passed by the writer. Appends and deletes are serialized by
the store; each committed write bumps Version and is published to every
registered listener, synchronously and in commit order, before the write
call returns.

# Live Results

FetchAll and FetchRange return a *Results handle. Observe on a handle takes
the current snapshot and registers a listener atomically with respect to
writes, so the observer sees every later mutation exactly once. Close
delivers a terminal mutation carrying ErrClosed to every listener.
*/
package store
