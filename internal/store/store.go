// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// Mutation describes one committed write. Inserted and Deleted hold full
// records so observers can filter them against their own query.
type Mutation struct {
	Version  uint64
	Inserted []models.LocationRecord
	Deleted  []models.LocationRecord

	// Err is set on the terminal mutation sent when the store closes.
	Err error
}

// Listener receives mutations. It is called synchronously by the writing
// goroutine and must not block or call back into the store.
type Listener func(Mutation)

// LogStore is the BadgerDB-backed location log.
type LogStore struct {
	db   *badger.DB
	opts Options

	// writeMu serializes writes, listener registration and Close.
	writeMu sync.Mutex
	seq     uint64
	closed  bool

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64

	count   atomic.Int64
	version atomic.Uint64

	// writeHook, when set, runs inside the append transaction. Tests use it
	// to force commit failures.
	writeHook func([]models.LocationRecord) error
}

// Open opens (or creates) the store described by opts.
func Open(opts Options) (*LogStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store options: %w", err)
	}

	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites
	bopts.MemTableSize = opts.MemTableSize
	if opts.ValueLogFileSize > 0 && !opts.InMemory {
		bopts.ValueLogFileSize = opts.ValueLogFileSize
	}
	if opts.Compression {
		bopts.Compression = options.Snappy
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &LogStore{
		db:        db,
		opts:      opts,
		listeners: make(map[uint64]Listener),
	}
	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Int64("records", s.count.Load()).
		Msg("Location store opened")
	return s, nil
}

// OpenInMemory opens a non-durable store. Used by tests and dry runs.
func OpenInMemory() (*LogStore, error) {
	opts := DefaultOptions()
	opts.Path = ""
	opts.InMemory = true
	opts.SyncWrites = false
	return Open(opts)
}

// recover loads the sequence counter and record count.
func (s *LogStore) recover() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySeq))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("read sequence: %w", err)
		default:
			if err := item.Value(func(v []byte) error {
				if len(v) != 8 {
					return fmt.Errorf("%w: sequence value has %d bytes", ErrCorruptRecord, len(v))
				}
				s.seq = binary.BigEndian.Uint64(v)
				return nil
			}); err != nil {
				return err
			}
		}

		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(iopts)
		defer it.Close()
		var n int64
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		s.count.Store(n)
		storeRecords.Set(float64(n))
		return nil
	})
}

// Append persists fixes as one atomic batch stamped with writtenAt.
// An empty batch is a no-op and publishes no mutation.
func (s *LogStore) Append(ctx context.Context, fixes []models.Fix, writtenAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(fixes) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkTimes(fixes, writtenAt); err != nil {
		storeAppendFailures.Inc()
		return &WriteError{BatchSize: len(fixes), Err: err}
	}

	start := time.Now()
	records := make([]models.LocationRecord, len(fixes))
	for i, f := range fixes {
		records[i] = models.LocationRecord{
			ID:          uuid.NewString(),
			Seq:         s.seq + uint64(i) + 1, //nolint:gosec // i is non-negative
			Fix:         f,
			CreatedDate: writtenAt,
		}
	}
	last := records[len(records)-1].Seq

	err := s.db.Update(func(txn *badger.Txn) error {
		if s.writeHook != nil {
			if err := s.writeHook(records); err != nil {
				return err
			}
		}
		for i := range records {
			rec := &records[i]
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			rk := recordKey(rec.CreatedDate, rec.Timestamp, rec.Seq)
			if err := txn.Set(rk, data); err != nil {
				return err
			}
			if err := txn.Set(timeKey(rec.Timestamp, rk), nil); err != nil {
				return err
			}
			if err := txn.Set(idKey(rec.ID), rk); err != nil {
				return err
			}
		}
		return txn.Set([]byte(keySeq), encodeSeq(last))
	})
	storeAppendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		storeAppendFailures.Inc()
		return &WriteError{BatchSize: len(fixes), Err: err}
	}

	s.seq = last
	n := s.count.Add(int64(len(records)))
	storeRecords.Set(float64(n))
	storeAppendsTotal.Inc()
	storeRecordsAppended.Add(float64(len(records)))

	s.publish(Mutation{Version: s.version.Add(1), Inserted: records})
	return nil
}

func checkTimes(fixes []models.Fix, writtenAt time.Time) error {
	if !keyable(writtenAt) {
		return fmt.Errorf("%w: written at %s", ErrTimestampRange, writtenAt.Format(time.RFC3339))
	}
	for i := range fixes {
		if ts := fixes[i].Timestamp; !keyable(ts) {
			return fmt.Errorf("%w: fix %d at %s", ErrTimestampRange, i, ts.Format(time.RFC3339))
		}
	}
	return nil
}

// Delete removes the records with the given IDs. Unknown IDs are ignored.
func (s *LogStore) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var deleted []models.LocationRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(idKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			rk, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := getRecord(txn, rk)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			for _, k := range [][]byte{rk, timeKey(rec.Timestamp, rk), idKey(id)} {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			deleted = append(deleted, rec)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	if len(deleted) == 0 {
		return nil
	}

	n := s.count.Add(-int64(len(deleted)))
	storeRecords.Set(float64(n))
	storeRecordsDeleted.Add(float64(len(deleted)))
	s.publish(Mutation{Version: s.version.Add(1), Deleted: deleted})
	return nil
}

// Count returns the number of stored records.
func (s *LogStore) Count() int64 {
	return s.count.Load()
}

// Version returns the number of committed writes since open.
func (s *LogStore) Version() uint64 {
	return s.version.Load()
}

// FetchAll returns a live handle over every record.
func (s *LogStore) FetchAll() *Results {
	return &Results{store: s}
}

// FetchRange returns a live handle over records whose Timestamp lies in
// [from, to).
func (s *LogStore) FetchRange(from, to time.Time) *Results {
	r := models.TimeRange{From: from, To: to}
	return &Results{store: s, rng: &r}
}

// register adds l and returns its cancel func. Must be called with writeMu held.
func (s *LogStore) register(l Listener) func() {
	s.listenersMu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = l
	storeListeners.Set(float64(len(s.listeners)))
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			storeListeners.Set(float64(len(s.listeners)))
			s.listenersMu.Unlock()
		})
	}
}

// publish delivers m to every listener. Must be called with writeMu held so
// mutations reach listeners in commit order.
func (s *LogStore) publish(m Mutation) {
	s.listenersMu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range ls {
		l(m)
	}
}

// RunGC reclaims value log space. In-memory stores have nothing to collect.
func (s *LogStore) RunGC() error {
	s.writeMu.Lock()
	closed := s.closed
	s.writeMu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.opts.InMemory {
		return nil
	}

	storeGCRuns.Inc()
	for {
		err := s.db.RunValueLogGC(s.opts.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

// Close notifies listeners with ErrClosed and shuts Badger down, waiting at
// most Options.CloseTimeout.
func (s *LogStore) Close() error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true
	s.publish(Mutation{Version: s.version.Load(), Err: ErrClosed})
	s.listenersMu.Lock()
	s.listeners = make(map[uint64]Listener)
	storeListeners.Set(0)
	s.listenersMu.Unlock()
	s.writeMu.Unlock()

	timeout := s.opts.CloseTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Location store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

func getRecord(txn *badger.Txn, rk []byte) (models.LocationRecord, error) {
	var rec models.LocationRecord
	item, err := txn.Get(rk)
	if err != nil {
		return rec, err
	}
	err = item.Value(func(v []byte) error {
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		return nil
	})
	return rec, err
}
