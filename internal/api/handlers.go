// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/trailkeeper/internal/feed"
	"github.com/tomtom215/trailkeeper/internal/ingest"
	"github.com/tomtom215/trailkeeper/internal/location"
	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
	"github.com/tomtom215/trailkeeper/internal/store"
	ws "github.com/tomtom215/trailkeeper/internal/websocket"
)

// LocationController is the sensing side of the adapter.
type LocationController interface {
	Status() location.Status
	StartUpdate() error
	StopUpdate() error
	StartSignificantChangeMonitoring() error
	StopSignificantChangeMonitoring() error
}

// RecordStore is the read side of the log store.
type RecordStore interface {
	Count() int64
	Version() uint64
	FetchRange(from, to time.Time) *store.Results
}

// DateIndex is the per-day read model. *view.DateList implements it.
type DateIndex interface {
	Rows() []models.DateAggregateEntry
	Ready() <-chan struct{}
}

// WriterStatus reports on the ingest writer.
type WriterStatus interface {
	Stats() ingest.WriterStats
	Ready() <-chan struct{}
}

// Dependencies are the components the handlers read from.
type Dependencies struct {
	Location LocationController
	Store    RecordStore
	Dates    DateIndex
	Writer   WriterStatus
	Hub      *ws.Hub
	Engine   *feed.Engine

	// TimeZone interprets day keys. Defaults to time.Local.
	TimeZone *time.Location

	// CORSOrigins are also checked against websocket Origin headers.
	CORSOrigins []string
}

// Handler serves the API routes.
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) *Handler {
	if deps.TimeZone == nil {
		deps.TimeZone = time.Local
	}
	return &Handler{deps: deps, startTime: time.Now()}
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Location      *location.Status    `json:"location,omitempty"`
	Writer        *ingest.WriterStats `json:"writer,omitempty"`
	RecordCount   int64               `json:"record_count"`
	StoreVersion  uint64              `json:"store_version"`
	DayCount      int                 `json:"day_count"`
	ClientCount   int                 `json:"websocket_clients"`
	TimeZone      string              `json:"time_zone"`
	UptimeSeconds float64             `json:"uptime_seconds"`
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady answers 200 once the writer is subscribed and the date
// index has its first snapshot.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"writer": h.deps.Writer != nil && closed(h.deps.Writer.Ready()),
		"dates":  h.deps.Dates != nil && closed(h.deps.Dates.Ready()),
	}
	ready := true
	for _, ok := range checks {
		ready = ready && ok
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	NewResponseWriter(w, r).SuccessWithStatus(status, map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Status reports adapter state, writer counters and store size.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		TimeZone:      h.deps.TimeZone.String(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	if h.deps.Location != nil {
		st := h.deps.Location.Status()
		resp.Location = &st
	}
	if h.deps.Writer != nil {
		stats := h.deps.Writer.Stats()
		resp.Writer = &stats
	}
	if h.deps.Store != nil {
		resp.RecordCount = h.deps.Store.Count()
		resp.StoreVersion = h.deps.Store.Version()
	}
	if h.deps.Dates != nil {
		resp.DayCount = len(h.deps.Dates.Rows())
	}
	if h.deps.Hub != nil {
		resp.ClientCount = h.deps.Hub.GetClientCount()
	}
	NewResponseWriter(w, r).Success(resp)
}

// Dates returns the per-day record counts, ascending by day key.
func (h *Handler) Dates(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Dates == nil || !closed(h.deps.Dates.Ready()) {
		rw.ServiceUnavailable("date index not ready")
		return
	}
	entries := h.deps.Dates.Rows()
	if entries == nil {
		entries = []models.DateAggregateEntry{}
	}
	rw.List(entries, len(entries))
}

// DayLocations returns the rows of one day in canonical record order.
func (h *Handler) DayLocations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Store == nil {
		rw.ServiceUnavailable("store unavailable")
		return
	}

	day := chi.URLParam(r, "day")
	rng, err := models.DayRange(day, h.deps.TimeZone)
	if err != nil {
		rw.BadRequest("day must be formatted yyyyMMdd")
		return
	}

	records, err := h.deps.Store.FetchRange(rng.From, rng.To).Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			rw.ServiceUnavailable("store closed")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("day", day).Msg("day snapshot failed")
		rw.InternalError("failed to read locations")
		return
	}

	rows := make([]models.LocationRow, len(records))
	for i := range records {
		rows[i] = records[i].Row()
	}
	rw.List(rows, len(rows))
}
