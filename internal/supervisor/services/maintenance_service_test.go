// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/trailkeeper/internal/store"
)

type mockGC struct {
	runs atomic.Int32
	err  error
}

func (m *mockGC) RunGC() error {
	m.runs.Add(1)
	return m.err
}

func TestStoreMaintenanceService_RunsOnInterval(t *testing.T) {
	gc := &mockGC{err: errors.New("nothing to collect")}
	svc := NewStoreMaintenanceService(gc, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for gc.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if gc.runs.Load() < 2 {
		t.Errorf("expected repeated GC runs despite errors, got %d", gc.runs.Load())
	}
}

func TestStoreMaintenanceService_Disabled(t *testing.T) {
	gc := &mockGC{}
	svc := NewStoreMaintenanceService(gc, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if gc.runs.Load() != 0 {
		t.Errorf("expected no GC runs, got %d", gc.runs.Load())
	}
}

func TestStoreMaintenanceService_StopsOnClosedStore(t *testing.T) {
	gc := &mockGC{err: store.ErrClosed}
	svc := NewStoreMaintenanceService(gc, 5*time.Millisecond)

	select {
	case err := <-func() chan error {
		ch := make(chan error, 1)
		go func() { ch <- svc.Serve(context.Background()) }()
		return ch
	}():
		if !errors.Is(err, store.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on a closed store")
	}
	if svc.String() != "store-maintenance" {
		t.Errorf("unexpected name %q", svc.String())
	}
}
