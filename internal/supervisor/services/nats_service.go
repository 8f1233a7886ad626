// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EmbeddedNATS is satisfied by *natsource.EmbeddedServer.
type EmbeddedNATS interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// EmbeddedNATSService holds an already started embedded server and shuts it
// down when the supervisor stops.
type EmbeddedNATSService struct {
	server          EmbeddedNATS
	shutdownTimeout time.Duration
}

// NewEmbeddedNATSService creates the service. A non-positive timeout
// becomes 5s.
func NewEmbeddedNATSService(server EmbeddedNATS, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &EmbeddedNATSService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. A server that is no longer running is
// reported as an error so the supervisor logs it; it cannot be restarted
// in place.
func (n *EmbeddedNATSService) Serve(ctx context.Context) error {
	if !n.server.IsRunning() {
		return errors.New("embedded nats server is not running")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), n.shutdownTimeout)
	defer cancel()
	if err := n.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("embedded nats shutdown failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (n *EmbeddedNATSService) String() string {
	return "embedded-nats"
}
