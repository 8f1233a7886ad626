// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/store"
)

// GarbageCollector is satisfied by *store.LogStore.
type GarbageCollector interface {
	RunGC() error
}

// StoreMaintenanceService runs value log GC on a fixed interval.
type StoreMaintenanceService struct {
	store    GarbageCollector
	interval time.Duration
}

// NewStoreMaintenanceService creates the service. A zero interval disables
// collection; Serve then just waits for shutdown.
func NewStoreMaintenanceService(s GarbageCollector, interval time.Duration) *StoreMaintenanceService {
	return &StoreMaintenanceService{store: s, interval: interval}
}

// Serve implements suture.Service.
func (m *StoreMaintenanceService) Serve(ctx context.Context) error {
	if m.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.store.RunGC(); err != nil {
				if errors.Is(err, store.ErrClosed) {
					return err
				}
				logging.Warn().Err(err).Msg("store garbage collection failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (m *StoreMaintenanceService) String() string {
	return "store-maintenance"
}
