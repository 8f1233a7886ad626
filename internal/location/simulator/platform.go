// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

// Package simulator provides a scriptable location.Platform for local
// runs and tests. Authorization answers, service availability, fixes,
// failures and pause/resume are all driven by the caller; delegate
// callbacks are always made with no simulator lock held.
package simulator

import (
	"slices"
	"sync"

	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/models"
)

// Calls counts platform commands issued by the adapter.
type Calls struct {
	Configure            int
	RequestAuthorization int
	StartUpdating        int
	StopUpdating         int
	StartSignificant     int
	StopSignificant      int
}

// Platform is an in-memory location.Platform.
type Platform struct {
	mu                   sync.Mutex
	status               location.AuthorizationStatus
	answer               location.AuthorizationStatus
	answerSet            bool
	servicesEnabled      bool
	significantAvailable bool
	updating             bool
	monitoring           bool
	options              location.Options
	delegate             location.Delegate
	calls                Calls
}

// New returns a platform reporting status with services and significant
// change monitoring available.
func New(status location.AuthorizationStatus) *Platform {
	return &Platform{
		status:               status,
		servicesEnabled:      true,
		significantAvailable: true,
	}
}

// AnswerRequests makes RequestAlwaysAuthorization switch to status and
// notify the delegate synchronously, as a user tapping the prompt would.
func (p *Platform) AnswerRequests(status location.AuthorizationStatus) {
	p.mu.Lock()
	p.answer = status
	p.answerSet = true
	p.mu.Unlock()
}

// SetServicesEnabled toggles the device-wide location switch.
func (p *Platform) SetServicesEnabled(enabled bool) {
	p.mu.Lock()
	p.servicesEnabled = enabled
	p.mu.Unlock()
}

// SetSignificantChangeAvailable toggles significant-change support.
func (p *Platform) SetSignificantChangeAvailable(available bool) {
	p.mu.Lock()
	p.significantAvailable = available
	p.mu.Unlock()
}

// SetAuthorization changes the status and notifies the delegate.
func (p *Platform) SetAuthorization(status location.AuthorizationStatus) {
	p.mu.Lock()
	p.status = status
	d := p.delegate
	p.mu.Unlock()
	if d != nil {
		d.DidChangeAuthorization(status)
	}
}

// Emit delivers a fix batch if updates or monitoring are running. It
// reports whether the batch reached a delegate.
func (p *Platform) Emit(fixes ...models.Fix) bool {
	p.mu.Lock()
	active := p.updating || p.monitoring
	d := p.delegate
	p.mu.Unlock()
	if !active || d == nil {
		return false
	}
	d.DidUpdateLocations(slices.Clone(fixes))
	return true
}

// Fail reports a sensing failure.
func (p *Platform) Fail(err error) {
	if d := p.currentDelegate(); d != nil {
		d.DidFail(err)
	}
}

// Pause reports that the platform paused continuous updates.
func (p *Platform) Pause() {
	if d := p.currentDelegate(); d != nil {
		d.DidPauseUpdates()
	}
}

// Resume reports that the platform resumed continuous updates.
func (p *Platform) Resume() {
	if d := p.currentDelegate(); d != nil {
		d.DidResumeUpdates()
	}
}

func (p *Platform) currentDelegate() location.Delegate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delegate
}

// Calls returns a copy of the command counters.
func (p *Platform) Calls() Calls {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Updating reports whether continuous updates are running.
func (p *Platform) Updating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updating
}

// Monitoring reports whether significant-change monitoring is running.
func (p *Platform) Monitoring() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.monitoring
}

// Options returns the last applied configuration.
func (p *Platform) Options() location.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.options
}

// HasDelegate reports whether a delegate is registered.
func (p *Platform) HasDelegate() bool {
	return p.currentDelegate() != nil
}

// location.Platform

func (p *Platform) AuthorizationStatus() location.AuthorizationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Platform) ServicesEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.servicesEnabled
}

func (p *Platform) SignificantChangeMonitoringAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.significantAvailable
}

func (p *Platform) RequestAlwaysAuthorization() {
	p.mu.Lock()
	p.calls.RequestAuthorization++
	answer, ok := p.answer, p.answerSet
	p.mu.Unlock()
	if ok {
		p.SetAuthorization(answer)
	}
}

func (p *Platform) StartUpdatingLocation() {
	p.mu.Lock()
	p.calls.StartUpdating++
	p.updating = true
	p.mu.Unlock()
}

func (p *Platform) StopUpdatingLocation() {
	p.mu.Lock()
	p.calls.StopUpdating++
	p.updating = false
	p.mu.Unlock()
}

func (p *Platform) StartMonitoringSignificantLocationChanges() {
	p.mu.Lock()
	p.calls.StartSignificant++
	p.monitoring = true
	p.mu.Unlock()
}

func (p *Platform) StopMonitoringSignificantLocationChanges() {
	p.mu.Lock()
	p.calls.StopSignificant++
	p.monitoring = false
	p.mu.Unlock()
}

func (p *Platform) Configure(opts location.Options) {
	p.mu.Lock()
	p.calls.Configure++
	p.options = opts
	p.mu.Unlock()
}

func (p *Platform) SetDelegate(d location.Delegate) {
	p.mu.Lock()
	p.delegate = d
	p.mu.Unlock()
}
