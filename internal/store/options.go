// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package store

import (
	"time"

	"github.com/tomtom215/trailkeeper/internal/config"
)

// Options configures a LogStore.
type Options struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string

	InMemory    bool
	SyncWrites  bool
	Compression bool

	// MemTableSize and ValueLogFileSize bound Badger memory use. Zero keeps
	// the package defaults below.
	MemTableSize     int64
	ValueLogFileSize int64

	// GCRatio is the discard ratio passed to value log GC.
	GCRatio float64

	// CloseTimeout bounds how long Close waits for Badger.
	CloseTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Path:             "/data/trailkeeper",
		SyncWrites:       true,
		Compression:      true,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 64 << 20,
		GCRatio:          0.5,
		CloseTimeout:     30 * time.Second,
	}
}

// OptionsFromConfig maps the store section of the process configuration.
func OptionsFromConfig(cfg config.StoreConfig) Options {
	o := DefaultOptions()
	o.Path = cfg.Path
	o.InMemory = cfg.InMemory
	o.SyncWrites = cfg.SyncWrites
	o.Compression = cfg.Compression
	if cfg.CloseTimeout > 0 {
		o.CloseTimeout = cfg.CloseTimeout
	}
	return o
}

// Validate checks the options before Badger sees them.
func (o *Options) Validate() error {
	if !o.InMemory && o.Path == "" {
		return &OptionsError{Field: "Path", Message: "store path is required"}
	}
	if o.GCRatio <= 0 || o.GCRatio >= 1 {
		return &OptionsError{Field: "GCRatio", Message: "must be between 0 and 1 exclusive"}
	}
	if o.MemTableSize < 1<<20 {
		return &OptionsError{Field: "MemTableSize", Message: "must be at least 1MB"}
	}
	return nil
}

// OptionsError is an invalid option value.
type OptionsError struct {
	Field   string
	Message string
}

func (e *OptionsError) Error() string {
	return "store option " + e.Field + ": " + e.Message
}
