// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

// Package config loads Trailkeeper configuration from defaults, an optional
// YAML file and environment variables (in increasing priority) using koanf,
// then validates it with go-playground/validator.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Location   LocationConfig   `koanf:"location"`
	Store      StoreConfig      `koanf:"store"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Feed       FeedConfig       `koanf:"feed"`
	NATS       NATSConfig       `koanf:"nats"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// LocationConfig configures the location source adapter and its platform driver.
type LocationConfig struct {
	// Driver selects the sensing platform: simulator or nats.
	Driver string `koanf:"driver" validate:"oneof=simulator nats"`

	// LaunchReason is how the process was started: normal, or
	// significant_location_change when relaunched by the platform.
	LaunchReason string `koanf:"launch_reason" validate:"oneof=normal significant_location_change"`

	// DesiredAccuracy in meters. 3000 is the coarse "three kilometers" class.
	DesiredAccuracy float64 `koanf:"desired_accuracy" validate:"gt=0"`

	// DistanceFilter in meters between delivered fixes.
	DistanceFilter float64 `koanf:"distance_filter" validate:"gte=0"`

	// PendingBatches bounds fix batches held before the ingestion sink attaches.
	PendingBatches int `koanf:"pending_batches" validate:"gte=1"`

	Simulator SimulatorConfig `koanf:"simulator"`
}

// SimulatorConfig drives the built-in simulated platform.
type SimulatorConfig struct {
	Authorization   string        `koanf:"authorization" validate:"oneof=not_determined restricted denied when_in_use always"`
	RequestAnswer   string        `koanf:"request_answer" validate:"omitempty,oneof=restricted denied when_in_use always"`
	ServicesEnabled bool          `koanf:"services_enabled"`
	Interval        time.Duration `koanf:"interval" validate:"gte=0"`
	StartLatitude   float64       `koanf:"start_latitude" validate:"latitude"`
	StartLongitude  float64       `koanf:"start_longitude" validate:"longitude"`
	Seed            int64         `koanf:"seed"`
}

// StoreConfig configures the BadgerDB-backed location log.
type StoreConfig struct {
	Path         string        `koanf:"path" validate:"required_unless=InMemory true"`
	InMemory     bool          `koanf:"in_memory"`
	SyncWrites   bool          `koanf:"sync_writes"`
	Compression  bool          `koanf:"compression"`
	CloseTimeout time.Duration `koanf:"close_timeout" validate:"gt=0"`
	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration `koanf:"gc_interval" validate:"gte=0"`
}

// IngestConfig configures the single-writer ingestion path.
type IngestConfig struct {
	Topic string `koanf:"topic" validate:"required"`

	// BreakerFailures is the number of consecutive append failures that
	// open the circuit breaker.
	BreakerFailures uint32 `koanf:"breaker_failures" validate:"gte=1"`

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// FeedConfig configures query observation and day grouping.
type FeedConfig struct {
	// TimeZone names the IANA zone used for calendar-day keys. Empty uses
	// the process local zone.
	TimeZone string `koanf:"time_zone"`
}

// NATSConfig configures the NATS platform driver.
type NATSConfig struct {
	URL            string        `koanf:"url" validate:"required"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	EmbeddedHost   string        `koanf:"embedded_host"`
	EmbeddedPort   int           `koanf:"embedded_port" validate:"gte=-1,lte=65535"`
	SubjectPrefix  string        `koanf:"subject_prefix" validate:"required"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	MaxReconnects  int           `koanf:"max_reconnects"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig configures suture restart behavior.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Location returns the zone used for day keys.
// Validate guarantees the name resolves.
func (c FeedConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
