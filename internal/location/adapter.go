// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package location

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// DefaultPendingBatches bounds the pre-attach buffer when Config leaves it unset.
const DefaultPendingBatches = 64

// Config configures an Adapter.
type Config struct {
	Options        Options
	PendingBatches int
}

// Adapter owns the authorization and tracking-mode state machine for one
// Platform and turns its callbacks into fix batches for a Sink.
//
// Platform calls are always made without holding the state lock, so a
// platform that calls back synchronously (for example answering an
// authorization request inline) cannot deadlock the adapter.
type Adapter struct {
	platform Platform
	launch   LaunchContext
	proxy    *delegateProxy
	logger   zerolog.Logger

	mu          sync.Mutex
	state       State
	denied      bool
	requested   bool
	paused      bool
	closed      bool
	lastFailure string

	// deliverMu serializes handoff to the sink in callback order.
	deliverMu  sync.Mutex
	sink       Sink
	pending    [][]models.Fix
	maxPending int

	received atomic.Uint64
	dropped  atomic.Uint64

	failureLog rate.Sometimes
}

// New configures platform, registers the adapter as its delegate and
// derives the initial state from the launch context and the current
// authorization status.
func New(platform Platform, launch LaunchContext, cfg Config) *Adapter {
	if cfg.PendingBatches <= 0 {
		cfg.PendingBatches = DefaultPendingBatches
	}
	a := &Adapter{
		platform:   platform,
		launch:     launch,
		logger:     logging.WithComponent("location"),
		maxPending: cfg.PendingBatches,
		failureLog: rate.Sometimes{First: 3, Interval: time.Minute},
	}

	status := platform.AuthorizationStatus()
	switch {
	case launch.Reason == LaunchSignificantLocationChange:
		a.state = SignificantChangeOnly
	case status.Granted():
		a.state = Stopped
	default:
		a.state = Unauthorized
		a.denied = status.Refused()
	}
	locationState.Set(float64(a.state))

	platform.Configure(cfg.Options)
	a.proxy = newDelegateProxy(a)
	platform.SetDelegate(a.proxy)

	a.logger.Info().
		Str("state", a.state.String()).
		Str("authorization", status.String()).
		Str("launch_reason", launch.Reason.String()).
		Msg("Location adapter initialized")
	return a
}

// Launch performs the startup action for the launch context: a process
// woken by a significant change only resumes significant-change
// monitoring, anything else requests continuous tracking.
func (a *Adapter) Launch() error {
	if a.launch.Reason == LaunchSignificantLocationChange {
		return a.StartSignificantChangeMonitoring()
	}
	return a.StartUpdate()
}

// StartUpdate requests continuous tracking. Undetermined authorization is
// requested once; denial is terminal for the process lifetime. Calling it
// while already tracking is a no-op. From SignificantChangeOnly the state
// is kept until the grant arrives.
func (a *Adapter) StartUpdate() error {
	status := a.platform.AuthorizationStatus()
	enabled := a.platform.ServicesEnabled()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state == StandardTracking {
		a.mu.Unlock()
		return nil
	}
	if a.denied || status.Refused() {
		a.denied = true
		a.setStateLocked(Unauthorized)
		a.mu.Unlock()
		logging.Failure(logging.KindAuthorizationDenied, ErrAuthorizationDenied).
			Str("authorization", status.String()).
			Msg("Location tracking not started")
		return ErrAuthorizationDenied
	}
	if status == NotDetermined {
		if a.requested {
			a.mu.Unlock()
			return nil
		}
		a.requested = true
		// Coarse monitoring keeps running while the request is outstanding.
		if a.state != SignificantChangeOnly {
			a.setStateLocked(AuthorizationPending)
		}
		a.mu.Unlock()
		a.logger.Info().Msg("Requesting always authorization")
		authorizationRequests.Inc()
		a.platform.RequestAlwaysAuthorization()
		return nil
	}
	if !enabled {
		a.mu.Unlock()
		logging.Failure(logging.KindSensingUnavailable, ErrSensingUnavailable).
			Msg("Location services disabled")
		return ErrSensingUnavailable
	}
	a.requested = false
	a.setStateLocked(StandardTracking)
	a.mu.Unlock()

	a.beginTracking()
	return nil
}

// beginTracking starts continuous updates together with significant-change
// monitoring, which keeps waking the process if continuous updates are
// later suspended by the platform.
func (a *Adapter) beginTracking() {
	trackingStarts.Inc()
	a.logger.Info().Msg("Starting continuous location updates")
	a.platform.StartUpdatingLocation()
	a.startSignificant()
}

// StopUpdate halts continuous updates. Significant-change monitoring is
// left as it is.
func (a *Adapter) StopUpdate() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if !a.denied {
		a.setStateLocked(Stopped)
	}
	a.mu.Unlock()

	a.logger.Info().Msg("Stopping continuous location updates")
	a.platform.StopUpdatingLocation()
	return nil
}

// StartSignificantChangeMonitoring begins coarse monitoring only. From
// Stopped the adapter moves to SignificantChangeOnly.
func (a *Adapter) StartSignificantChangeMonitoring() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state == Stopped {
		a.setStateLocked(SignificantChangeOnly)
	}
	a.mu.Unlock()

	a.startSignificant()
	return nil
}

// StopSignificantChangeMonitoring ends coarse monitoring. From
// SignificantChangeOnly the adapter moves to Stopped.
func (a *Adapter) StopSignificantChangeMonitoring() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state == SignificantChangeOnly {
		a.setStateLocked(Stopped)
	}
	a.mu.Unlock()

	if !a.platform.SignificantChangeMonitoringAvailable() {
		a.logger.Info().Msg("Significant-change monitoring unavailable")
		return nil
	}
	a.logger.Info().Msg("Stopping significant-change monitoring")
	a.platform.StopMonitoringSignificantLocationChanges()
	return nil
}

func (a *Adapter) startSignificant() {
	if !a.platform.SignificantChangeMonitoringAvailable() {
		a.logger.Info().Msg("Significant-change monitoring unavailable")
		return
	}
	a.logger.Info().Msg("Starting significant-change monitoring")
	a.platform.StartMonitoringSignificantLocationChanges()
}

func (a *Adapter) setStateLocked(s State) {
	if a.state == s {
		return
	}
	a.logger.Debug().
		Str("from", a.state.String()).
		Str("to", s.String()).
		Msg("Location state changed")
	a.state = s
	locationState.Set(float64(s))
}

// handleAuthorization reacts to an authorization change. A grant only
// starts tracking from Unauthorized, AuthorizationPending, or
// SignificantChangeOnly with a request outstanding, so repeated grants
// never register twice.
func (a *Adapter) handleAuthorization(status AuthorizationStatus) {
	authorizationChanges.WithLabelValues(status.String()).Inc()
	a.logger.Info().Str("authorization", status.String()).Msg("Authorization changed")

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	switch {
	case status.Refused():
		wasTracking := a.state == StandardTracking
		a.denied = true
		a.setStateLocked(Unauthorized)
		a.mu.Unlock()
		logging.Failure(logging.KindAuthorizationDenied, ErrAuthorizationDenied).
			Str("authorization", status.String()).
			Msg("Location authorization refused")
		if wasTracking {
			a.platform.StopUpdatingLocation()
		}
		return

	case status.Granted():
		if a.denied {
			a.mu.Unlock()
			a.logger.Info().Msg("Ignoring grant after denial until restart")
			return
		}
		awaiting := a.state == Unauthorized || a.state == AuthorizationPending ||
			(a.state == SignificantChangeOnly && a.requested)
		if !awaiting {
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()
		_ = a.StartUpdate()
		return
	}
	a.mu.Unlock()
}

// handleFixes hands a batch to the sink, or buffers it while no sink is
// attached. The buffer drops its oldest batch when full.
func (a *Adapter) handleFixes(fixes []models.Fix) {
	if len(fixes) == 0 {
		return
	}
	batch := slices.Clone(fixes)
	a.received.Add(uint64(len(batch)))
	fixesReceived.Add(float64(len(batch)))

	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	if a.sink == nil {
		if len(a.pending) >= a.maxPending {
			dropped := a.pending[0]
			a.pending = a.pending[1:]
			a.dropped.Add(1)
			batchesDropped.Inc()
			a.logger.Warn().
				Int("batch_size", len(dropped)).
				Int("pending", len(a.pending)).
				Msg("Dropped buffered fix batch, no sink attached")
		}
		a.pending = append(a.pending, batch)
		pendingBatches.Set(float64(len(a.pending)))
		return
	}
	a.deliverLocked(batch)
}

func (a *Adapter) deliverLocked(batch []models.Fix) {
	if err := a.sink.DeliverFixes(batch); err != nil {
		a.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Fix batch handoff failed")
		return
	}
	batchesDelivered.Inc()
}

// AttachSink connects ingestion. Buffered batches are flushed in arrival
// order before any later batch is delivered.
func (a *Adapter) AttachSink(s Sink) {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	a.sink = s
	if s == nil {
		return
	}
	if n := len(a.pending); n > 0 {
		a.logger.Info().Int("batches", n).Msg("Flushing buffered fix batches")
	}
	for _, batch := range a.pending {
		a.deliverLocked(batch)
	}
	a.pending = nil
	pendingBatches.Set(0)
}

// handleFailure records a sensing failure. Nothing is retried; the
// platform is expected to resume delivering fixes on its own.
func (a *Adapter) handleFailure(err error) {
	sensingFailures.Inc()
	a.mu.Lock()
	a.lastFailure = err.Error()
	a.mu.Unlock()

	a.failureLog.Do(func() {
		logging.Failure(logging.KindSensingUnavailable, err).Msg("Location sensing failed")
	})
}

func (a *Adapter) handlePause(paused bool) {
	a.mu.Lock()
	a.paused = paused
	a.mu.Unlock()
	if paused {
		pauseEvents.WithLabelValues("pause").Inc()
		a.logger.Info().Msg("Location updates paused by platform")
		return
	}
	pauseEvents.WithLabelValues("resume").Inc()
	a.logger.Info().Msg("Location updates resumed by platform")
}

// State returns the current tracking mode.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status returns a snapshot for diagnostics.
func (a *Adapter) Status() Status {
	status := a.platform.AuthorizationStatus()

	a.mu.Lock()
	st := Status{
		State:         a.state,
		StateName:     a.state.String(),
		Authorization: status.String(),
		LaunchReason:  a.launch.Reason.String(),
		Denied:        a.denied,
		Paused:        a.paused,
		LastFailure:   a.lastFailure,
	}
	a.mu.Unlock()

	a.deliverMu.Lock()
	st.SinkAttached = a.sink != nil
	st.PendingBatches = len(a.pending)
	a.deliverMu.Unlock()

	st.FixesReceived = a.received.Load()
	st.DroppedBatches = a.dropped.Load()
	return st
}

// Close unregisters the delegate. Callbacks already queued by the platform
// find no owner and are discarded.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.proxy.detach()
	a.platform.SetDelegate(nil)
	a.logger.Info().Msg("Location adapter closed")
	return nil
}
