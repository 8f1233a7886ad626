// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	subscriptionKey contextKey = "subscription_id"
)

// GenerateRequestID returns a new random request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID attaches an HTTP request ID to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSubscriptionID attaches a change-feed subscription ID to ctx.
func ContextWithSubscriptionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, subscriptionKey, id)
}

// SubscriptionIDFromContext returns the subscription ID or "".
func SubscriptionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(subscriptionKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the IDs carried by ctx.
//
//	logging.Ctx(r.Context()).Info().Msg("Day selected")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if id := SubscriptionIDFromContext(ctx); id != "" {
		lc = lc.Str("subscription_id", id)
	}
	l := lc.Logger()
	return &l
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
