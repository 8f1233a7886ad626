// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation after Close, and carried by
	// the terminal mutation delivered to listeners.
	ErrClosed = errors.New("store is closed")

	// ErrPersistenceWrite marks a batch that could not be committed.
	ErrPersistenceWrite = errors.New("persistence write failed")

	// ErrCorruptRecord is returned when a stored value cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt location record")

	// ErrTimestampRange marks a fix or write time outside the key range,
	// roughly the years 1678 to 2262.
	ErrTimestampRange = errors.New("timestamp outside storable range")
)

// WriteError describes a failed Append. It matches ErrPersistenceWrite and
// the underlying cause with errors.Is.
type WriteError struct {
	BatchSize int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("persistence write failed for batch of %d: %v", e.BatchSize, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrPersistenceWrite, e.Err}
}
