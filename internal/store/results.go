// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package store

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/trailkeeper/internal/models"
)

// Results is a live query over the store: all records, or records whose
// Timestamp falls in a half-open range. It holds no data itself; Snapshot
// reads the current matching set in canonical order.
type Results struct {
	store *LogStore
	rng   *models.TimeRange
}

// Range returns the timestamp filter, if any.
func (r *Results) Range() (models.TimeRange, bool) {
	if r.rng == nil {
		return models.TimeRange{}, false
	}
	return *r.rng, true
}

// Matches reports whether rec belongs to this result set.
func (r *Results) Matches(rec *models.LocationRecord) bool {
	return r.rng == nil || r.rng.Contains(rec.Timestamp)
}

// Snapshot returns the matching records in canonical order.
func (r *Results) Snapshot(ctx context.Context) ([]models.LocationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.writeMu.Lock()
	closed := r.store.closed
	r.store.writeMu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return r.load()
}

// Observe returns the current snapshot and registers l for every later
// mutation. No commit can land between the snapshot and the registration.
// The returned cancel func is idempotent; a mutation already being
// published when cancel runs may still reach l.
func (r *Results) Observe(l Listener) ([]models.LocationRecord, func(), error) {
	r.store.writeMu.Lock()
	defer r.store.writeMu.Unlock()
	if r.store.closed {
		return nil, nil, ErrClosed
	}
	snap, err := r.load()
	if err != nil {
		return nil, nil, err
	}
	return snap, r.store.register(l), nil
}

func (r *Results) load() ([]models.LocationRecord, error) {
	var out []models.LocationRecord
	err := r.store.db.View(func(txn *badger.Txn) error {
		if r.rng == nil {
			return scanRecords(txn, &out)
		}
		return scanRange(txn, *r.rng, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return out, nil
}

func scanRecords(txn *badger.Txn, out *[]models.LocationRecord) error {
	iopts := badger.DefaultIteratorOptions
	iopts.Prefix = []byte(prefixRecord)
	it := txn.NewIterator(iopts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var rec models.LocationRecord
		if err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		}); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		*out = append(*out, rec)
	}
	return nil
}

func scanRange(txn *badger.Txn, rng models.TimeRange, out *[]models.LocationRecord) error {
	if !rng.From.Before(rng.To) {
		return nil
	}
	iopts := badger.DefaultIteratorOptions
	iopts.PrefetchValues = false
	iopts.Prefix = []byte(prefixTime)
	it := txn.NewIterator(iopts)
	defer it.Close()

	upper := timeBound(rng.To)
	for it.Seek(timeBound(rng.From)); it.Valid(); it.Next() {
		k := it.Item().Key()
		if bytes.Compare(k, upper) >= 0 {
			break
		}
		rec, err := getRecord(txn, recordKeyFromTimeKey(k))
		if err != nil {
			return err
		}
		*out = append(*out, rec)
	}
	slices.SortFunc(*out, func(a, b models.LocationRecord) int {
		switch {
		case a.Less(&b):
			return -1
		case b.Less(&a):
			return 1
		default:
			return 0
		}
	})
	return nil
}
