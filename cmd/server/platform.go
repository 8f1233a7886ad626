// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/trailkeeper/internal/config"
	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/location/natsource"
	"github.com/tomtom215/trailkeeper/internal/location/simulator"
	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/supervisor/services"
)

// platformSource is the configured sensing platform plus the services it
// needs supervised and the cleanup to run after the tree stops.
type platformSource struct {
	platform location.Platform
	services []suture.Service
	cleanups []func()
}

func (p *platformSource) close() {
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		p.cleanups[i]()
	}
}

func newPlatformSource(cfg *config.Config) (*platformSource, error) {
	switch cfg.Location.Driver {
	case "nats":
		return newNATSSource(cfg.NATS)
	default:
		return newSimulatorSource(cfg.Location.Simulator)
	}
}

func newSimulatorSource(cfg config.SimulatorConfig) (*platformSource, error) {
	status, err := location.ParseAuthorizationStatus(cfg.Authorization)
	if err != nil {
		return nil, fmt.Errorf("simulator authorization: %w", err)
	}

	platform := simulator.New(status)
	platform.SetServicesEnabled(cfg.ServicesEnabled)
	if cfg.RequestAnswer != "" {
		answer, err := location.ParseAuthorizationStatus(cfg.RequestAnswer)
		if err != nil {
			return nil, fmt.Errorf("simulator request answer: %w", err)
		}
		platform.AnswerRequests(answer)
	}

	src := &platformSource{platform: platform}
	if cfg.Interval > 0 {
		src.services = append(src.services, simulator.NewWalker(platform, simulator.WalkerConfig{
			Interval:  cfg.Interval,
			Latitude:  cfg.StartLatitude,
			Longitude: cfg.StartLongitude,
			Seed:      cfg.Seed,
		}))
	}

	logging.Info().
		Str("authorization", status.String()).
		Dur("interval", cfg.Interval).
		Msg("Using simulated location platform")
	return src, nil
}

func newNATSSource(cfg config.NATSConfig) (_ *platformSource, err error) {
	src := &platformSource{}
	defer func() {
		if err != nil {
			src.close()
		}
	}()

	url := cfg.URL
	if cfg.EmbeddedServer {
		embedded, err := natsource.NewEmbeddedServer(natsource.ServerConfig{
			Host:         cfg.EmbeddedHost,
			Port:         cfg.EmbeddedPort,
			NoLog:        true,
			ReadyTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("start embedded nats: %w", err)
		}
		src.services = append(src.services, services.NewEmbeddedNATSService(embedded, 5*time.Second))
		// The supervisor normally shuts the server down; this covers a
		// failure before the tree starts.
		src.cleanups = append(src.cleanups, func() {
			if !embedded.IsRunning() {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := embedded.Shutdown(ctx); err != nil {
				logging.Warn().Err(err).Msg("Embedded NATS shutdown failed")
			}
		})
		url = embedded.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	nc, err := natsource.Connect(url, cfg.MaxReconnects)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	src.cleanups = append(src.cleanups, func() { drainConn(nc) })

	platform, err := natsource.New(nc, natsource.Config{
		SubjectPrefix:  cfg.SubjectPrefix,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats platform: %w", err)
	}
	src.platform = platform
	src.cleanups = append(src.cleanups, platform.Close)

	logging.Info().Str("url", url).Str("prefix", cfg.SubjectPrefix).Msg("Using NATS location platform")
	return src, nil
}

func drainConn(nc *nats.Conn) {
	if nc.IsClosed() {
		return
	}
	if err := nc.Drain(); err != nil {
		logging.Debug().Err(err).Msg("NATS drain failed")
		nc.Close()
	}
}

func launchContext(cfg config.LocationConfig) (location.LaunchContext, error) {
	reason, err := location.ParseLaunchReason(cfg.LaunchReason)
	if err != nil {
		return location.LaunchContext{}, fmt.Errorf("launch reason: %w", err)
	}
	return location.LaunchContext{Reason: reason}, nil
}

func adapterOptions(cfg config.LocationConfig) location.Options {
	opts := location.DefaultOptions()
	if cfg.DesiredAccuracy > 0 {
		opts.DesiredAccuracy = cfg.DesiredAccuracy
	}
	opts.DistanceFilter = cfg.DistanceFilter
	return opts
}
