// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package services

import (
	"context"

	"github.com/tomtom215/trailkeeper/internal/aggregate"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService names the hub for the supervisor.
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService creates a new WebSocket hub service wrapper.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's logs.
func (w *WebSocketHubService) String() string {
	return w.name
}

// DateSource is satisfied by *aggregate.View.
type DateSource interface {
	Subscribe(l aggregate.Listener) func()
}

// DateBroadcaster is satisfied by *websocket.Hub.
type DateBroadcaster interface {
	BroadcastDates(entries []models.DateAggregateEntry)
}

// DateBroadcastService forwards every date aggregate replacement to the
// websocket hub.
type DateBroadcastService struct {
	source DateSource
	hub    DateBroadcaster
}

// NewDateBroadcastService creates the service.
func NewDateBroadcastService(source DateSource, hub DateBroadcaster) *DateBroadcastService {
	return &DateBroadcastService{source: source, hub: hub}
}

// Serve implements suture.Service.
func (d *DateBroadcastService) Serve(ctx context.Context) error {
	unsubscribe := d.source.Subscribe(d.hub.BroadcastDates)
	defer unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (d *DateBroadcastService) String() string {
	return "date-broadcast"
}
