// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"trailkeeper.yaml",
	"trailkeeper.yml",
	"/etc/trailkeeper/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Location: LocationConfig{
			Driver:          "simulator",
			LaunchReason:    "normal",
			DesiredAccuracy: 3000,
			DistanceFilter:  100,
			PendingBatches:  64,
			Simulator: SimulatorConfig{
				Authorization:   "not_determined",
				RequestAnswer:   "always",
				ServicesEnabled: true,
				Interval:        5 * time.Second,
				StartLatitude:   35.681236,
				StartLongitude:  139.767125,
			},
		},
		Store: StoreConfig{
			Path:         "/data/trailkeeper",
			SyncWrites:   true,
			Compression:  true,
			CloseTimeout: 30 * time.Second,
			GCInterval:   10 * time.Minute,
		},
		Ingest: IngestConfig{
			Topic:           "location.fixes",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedHost:   "127.0.0.1",
			EmbeddedPort:   4222,
			SubjectPrefix:  "trailkeeper.location",
			RequestTimeout: 2 * time.Second,
			MaxReconnects:  10,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the config file (if any) and
// the environment, in that order of increasing priority.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Unmapped variables transform to "" and are skipped by the provider.
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// listPaths are koanf paths whose env values are comma separated.
var listPaths = []string{
	"server.cors_origins",
}

func splitLists(k *koanf.Koanf) error {
	for _, path := range listPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names to koanf paths. Variables not
// listed here are ignored.
var envMappings = map[string]string{
	"location_driver":           "location.driver",
	"launch_reason":             "location.launch_reason",
	"location_desired_accuracy": "location.desired_accuracy",
	"location_distance_filter":  "location.distance_filter",
	"location_pending_batches":  "location.pending_batches",

	"simulator_authorization":    "location.simulator.authorization",
	"simulator_request_answer":   "location.simulator.request_answer",
	"simulator_services_enabled": "location.simulator.services_enabled",
	"simulator_interval":         "location.simulator.interval",
	"simulator_start_latitude":   "location.simulator.start_latitude",
	"simulator_start_longitude":  "location.simulator.start_longitude",
	"simulator_seed":             "location.simulator.seed",

	"store_path":          "store.path",
	"store_in_memory":     "store.in_memory",
	"store_sync_writes":   "store.sync_writes",
	"store_compression":   "store.compression",
	"store_close_timeout": "store.close_timeout",
	"store_gc_interval":   "store.gc_interval",

	"ingest_topic":            "ingest.topic",
	"ingest_breaker_failures": "ingest.breaker_failures",
	"ingest_breaker_timeout":  "ingest.breaker_timeout",

	"feed_time_zone": "feed.time_zone",

	"nats_url":             "nats.url",
	"nats_embedded_server": "nats.embedded_server",
	"nats_embedded_host":   "nats.embedded_host",
	"nats_embedded_port":   "nats.embedded_port",
	"nats_subject_prefix":  "nats.subject_prefix",
	"nats_request_timeout": "nats.request_timeout",
	"nats_max_reconnects":  "nats.max_reconnects",

	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envKey returns the koanf path for an environment variable, or "" to skip it.
func envKey(name string) string {
	return envMappings[strings.ToLower(name)]
}
