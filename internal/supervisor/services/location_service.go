// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package services

import (
	"context"
	"errors"

	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/logging"
)

// LocationSource is satisfied by *location.Adapter.
type LocationSource interface {
	AttachSink(s location.Sink)
	Launch() error
	StopUpdate() error
}

// LocationService attaches the ingest sink once the writer is consuming,
// launches the adapter, and stops continuous updates on shutdown.
type LocationService struct {
	source      LocationSource
	sink        location.Sink
	writerReady <-chan struct{}
	attached    bool
}

// NewLocationService creates the service. A nil writerReady attaches the
// sink immediately.
func NewLocationService(source LocationSource, sink location.Sink, writerReady <-chan struct{}) *LocationService {
	return &LocationService{source: source, sink: sink, writerReady: writerReady}
}

// Serve implements suture.Service. Launch failures are logged and the
// service keeps running so the API can retry through the controls.
func (l *LocationService) Serve(ctx context.Context) error {
	if l.writerReady != nil {
		select {
		case <-l.writerReady:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !l.attached {
		l.source.AttachSink(l.sink)
		l.attached = true
		if err := l.source.Launch(); err != nil {
			logging.Warn().Err(err).Msg("location launch did not start tracking")
		}
	}

	<-ctx.Done()

	if err := l.source.StopUpdate(); err != nil && !errors.Is(err, location.ErrClosed) {
		logging.Warn().Err(err).Msg("stopping location updates failed")
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (l *LocationService) String() string {
	return "location-source"
}
