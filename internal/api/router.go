// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router binds a Handler to its routes.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(DefaultMiddlewareConfig())
	}
	return &Router{handler: handler, middleware: mw}
}

// Setup returns the chi handler for all routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)

		r.Get("/status", router.handler.Status)
		r.Get("/dates", router.handler.Dates)
		r.Get("/days/{day}/locations", router.handler.DayLocations)

		r.Route("/location", func(r chi.Router) {
			r.Post("/start", router.handler.StartLocation)
			r.Post("/stop", router.handler.StopLocation)
			r.Post("/significant/start", router.handler.StartSignificant)
			r.Post("/significant/stop", router.handler.StopSignificant)
		})

		r.Get("/ws", router.handler.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}
