// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package location

import (
	"sync/atomic"

	"github.com/tomtom215/trailkeeper/internal/models"
)

// delegateProxy is what the platform holds. It points back at the adapter
// without owning it; detach clears the pointer so late callbacks are no-ops.
type delegateProxy struct {
	owner atomic.Pointer[Adapter]
}

func newDelegateProxy(a *Adapter) *delegateProxy {
	p := &delegateProxy{}
	p.owner.Store(a)
	return p
}

func (p *delegateProxy) detach() { p.owner.Store(nil) }

func (p *delegateProxy) DidChangeAuthorization(status AuthorizationStatus) {
	if a := p.owner.Load(); a != nil {
		a.handleAuthorization(status)
	}
}

func (p *delegateProxy) DidUpdateLocations(fixes []models.Fix) {
	if a := p.owner.Load(); a != nil {
		a.handleFixes(fixes)
	}
}

func (p *delegateProxy) DidFail(err error) {
	if a := p.owner.Load(); a != nil && err != nil {
		a.handleFailure(err)
	}
}

func (p *delegateProxy) DidPauseUpdates() {
	if a := p.owner.Load(); a != nil {
		a.handlePause(true)
	}
}

func (p *delegateProxy) DidResumeUpdates() {
	if a := p.owner.Load(); a != nil {
		a.handlePause(false)
	}
}
