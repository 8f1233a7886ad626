// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/trailkeeper/internal/aggregate"
	"github.com/tomtom215/trailkeeper/internal/models"
)

type mockContextHub struct {
	runCount atomic.Int32
	started  chan struct{}
}

func (m *mockContextHub) RunWithContext(ctx context.Context) error {
	m.runCount.Add(1)
	select {
	case m.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService_Interface(t *testing.T) {
	var _ suture.Service = (*WebSocketHubService)(nil)
	var _ suture.Service = (*DateBroadcastService)(nil)
}

func TestWebSocketHubService_WithSupervisor(t *testing.T) {
	hub := &mockContextHub{started: make(chan struct{}, 1)}
	svc := NewWebSocketHubService(hub)
	if svc.String() != "websocket-hub" {
		t.Errorf("expected name websocket-hub, got %q", svc.String())
	}

	sup := suture.NewSimple("test")
	sup.Add(svc)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	select {
	case <-hub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("hub was not started")
	}
	cancel()
	<-errCh

	if hub.runCount.Load() != 1 {
		t.Errorf("expected one run, got %d", hub.runCount.Load())
	}
}

type mockDateSource struct {
	mu       sync.Mutex
	listener aggregate.Listener
	unsubbed bool
	attached chan struct{}
}

func (m *mockDateSource) Subscribe(l aggregate.Listener) func() {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
	close(m.attached)
	return func() {
		m.mu.Lock()
		m.unsubbed = true
		m.mu.Unlock()
	}
}

func (m *mockDateSource) emit(entries []models.DateAggregateEntry) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	l(entries)
}

type mockBroadcaster struct {
	got chan []models.DateAggregateEntry
}

func (m *mockBroadcaster) BroadcastDates(entries []models.DateAggregateEntry) {
	m.got <- entries
}

func TestDateBroadcastService_ForwardsAndUnsubscribes(t *testing.T) {
	src := &mockDateSource{attached: make(chan struct{})}
	hub := &mockBroadcaster{got: make(chan []models.DateAggregateEntry, 1)}
	svc := NewDateBroadcastService(src, hub)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	<-src.attached
	want := []models.DateAggregateEntry{{DateKey: "20260301", Count: 2}}
	src.emit(want)

	select {
	case got := <-hub.got:
		if len(got) != 1 || got[0] != want[0] {
			t.Errorf("expected %v, got %v", want, got)
		}
	case <-time.After(time.Second):
		t.Fatal("entries were not forwarded")
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if !src.unsubbed {
		t.Error("expected the listener to be removed on shutdown")
	}
}
