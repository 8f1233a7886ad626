// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/logging"
)

// StartLocation starts standard location updates, requesting
// authorization first if it has never been asked.
func (h *Handler) StartLocation(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "start", func(c LocationController) error { return c.StartUpdate() })
}

// StopLocation stops continuous updates.
func (h *Handler) StopLocation(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "stop", func(c LocationController) error { return c.StopUpdate() })
}

// StartSignificant switches a stopped adapter to significant-change
// monitoring only.
func (h *Handler) StartSignificant(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "significant_start", func(c LocationController) error {
		return c.StartSignificantChangeMonitoring()
	})
}

// StopSignificant ends significant-change-only monitoring.
func (h *Handler) StopSignificant(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "significant_stop", func(c LocationController) error {
		return c.StopSignificantChangeMonitoring()
	})
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request, action string, fn func(LocationController) error) {
	rw := NewResponseWriter(w, r)
	if h.deps.Location == nil {
		rw.ServiceUnavailable("location source unavailable")
		return
	}

	err := fn(h.deps.Location)
	switch {
	case err == nil:
		rw.Success(h.deps.Location.Status())
	case errors.Is(err, location.ErrAuthorizationDenied):
		rw.Forbidden(err.Error())
	case errors.Is(err, location.ErrSensingUnavailable), errors.Is(err, location.ErrClosed):
		rw.ServiceUnavailable(err.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("action", action).Msg("location control failed")
		rw.InternalError("location control failed")
	}
}
