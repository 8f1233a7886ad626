// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package store

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	prefixRecord = "rec:"
	prefixTime   = "ts:"
	prefixID     = "id:"
	keySeq       = "meta:seq"

	// created + timestamp + seq
	recSuffixLen = 24
)

// Key times are nanoseconds since the epoch in an int64.
var (
	minKeyTime = time.Unix(0, math.MinInt64)
	maxKeyTime = time.Unix(0, math.MaxInt64)
)

func keyable(t time.Time) bool {
	return !t.Before(minKeyTime) && !t.After(maxKeyTime)
}

// sortableTime encodes t so that byte order equals time order, including
// instants before 1970.
func sortableTime(t time.Time) uint64 {
	return uint64(t.UnixNano()) ^ (1 << 63) //nolint:gosec // intentional bit reinterpretation
}

func putTime(b []byte, t time.Time) {
	binary.BigEndian.PutUint64(b, sortableTime(t))
}

func recordKey(created, ts time.Time, seq uint64) []byte {
	k := make([]byte, len(prefixRecord)+recSuffixLen)
	n := copy(k, prefixRecord)
	putTime(k[n:], created)
	putTime(k[n+8:], ts)
	binary.BigEndian.PutUint64(k[n+16:], seq)
	return k
}

// timeKey indexes a record key by its fix timestamp.
func timeKey(ts time.Time, recKey []byte) []byte {
	k := make([]byte, len(prefixTime)+8+recSuffixLen)
	n := copy(k, prefixTime)
	putTime(k[n:], ts)
	copy(k[n+8:], recKey[len(prefixRecord):])
	return k
}

// timeBound is the ts: scan boundary for t.
func timeBound(t time.Time) []byte {
	k := make([]byte, len(prefixTime)+8)
	n := copy(k, prefixTime)
	putTime(k[n:], t)
	return k
}

// recordKeyFromTimeKey recovers the record key from an index key.
func recordKeyFromTimeKey(k []byte) []byte {
	suffix := k[len(prefixTime)+8:]
	rk := make([]byte, 0, len(prefixRecord)+len(suffix))
	rk = append(rk, prefixRecord...)
	return append(rk, suffix...)
}

func idKey(id string) []byte {
	return append([]byte(prefixID), id...)
}

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
