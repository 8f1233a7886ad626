// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/trailkeeper/internal/aggregate"
	"github.com/tomtom215/trailkeeper/internal/api"
	"github.com/tomtom215/trailkeeper/internal/config"
	"github.com/tomtom215/trailkeeper/internal/feed"
	"github.com/tomtom215/trailkeeper/internal/ingest"
	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/store"
	"github.com/tomtom215/trailkeeper/internal/supervisor"
	"github.com/tomtom215/trailkeeper/internal/supervisor/services"
	"github.com/tomtom215/trailkeeper/internal/view"
	ws "github.com/tomtom215/trailkeeper/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Trailkeeper stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Trailkeeper stopped")
}

//nolint:gocyclo // sequential wiring of every component
func run(cfg *config.Config) error {
	logging.Info().
		Str("driver", cfg.Location.Driver).
		Str("store_path", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Str("time_zone", cfg.Feed.Location().String()).
		Msg("Starting Trailkeeper with supervisor tree")

	db, err := store.Open(store.OptionsFromConfig(cfg.Store))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Int64("records", db.Count()).Msg("Location store opened")

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// Ingestion: adapter -> in-process bus -> single writer -> store.
	bus := ingest.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing ingest bus")
		}
	}()
	writer := ingest.NewWriter(bus.Subscriber(), db, ingest.WriterConfig{
		Topic:           cfg.Ingest.Topic,
		BreakerFailures: cfg.Ingest.BreakerFailures,
		BreakerTimeout:  cfg.Ingest.BreakerTimeout,
	})
	publisher := ingest.NewPublisher(bus.Publisher(), cfg.Ingest.Topic)

	src, err := newPlatformSource(cfg)
	if err != nil {
		return err
	}
	defer src.close()

	launch, err := launchContext(cfg.Location)
	if err != nil {
		return err
	}
	adapter := location.New(src.platform, launch, location.Config{
		Options:        adapterOptions(cfg.Location),
		PendingBatches: cfg.Location.PendingBatches,
	})
	defer func() {
		if err := adapter.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing location adapter")
		}
	}()

	// Change feed and derived views.
	tz := cfg.Feed.Location()
	executor := feed.NewExecutor("feed-executor")
	engine := feed.NewEngine(executor)
	dates := aggregate.New(db.FetchAll(), tz, executor)
	dateList := view.NewDateList(dates)
	defer dateList.Close()
	hub := ws.NewHub()

	handler := api.NewHandler(api.Dependencies{
		Location:    adapter,
		Store:       db,
		Dates:       dateList,
		Writer:      writer,
		Hub:         hub,
		Engine:      engine,
		TimeZone:    tz,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	mw := api.NewMiddleware(api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		CORSMaxAge:         300,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		RateLimitDisabled:  cfg.Server.RateLimitDisabled,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, mw).Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree.AddDataService(writer)
	tree.AddDataService(executor)
	tree.AddDataService(dates)
	tree.AddDataService(services.NewStoreMaintenanceService(db, cfg.Store.GCInterval))

	for _, svc := range src.services {
		tree.AddMessagingService(svc)
	}
	tree.AddMessagingService(services.NewLocationService(adapter, publisher, writer.Ready()))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewDateBroadcastService(dates, hub))

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown requested, waiting for supervisor to finish...")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			serveErr = fmt.Errorf("supervisor: %w", err)
		}
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("supervisor: %w", err)
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	return serveErr
}
