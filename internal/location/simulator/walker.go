// Trailkeeper - Background Location Telemetry Capture and Change Feed
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailkeeper

package simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tomtom215/trailkeeper/internal/logging"
	"github.com/tomtom215/trailkeeper/internal/models"
)

const metersPerDegree = 111_320.0

// WalkerConfig configures the random walk.
type WalkerConfig struct {
	Interval  time.Duration
	Latitude  float64
	Longitude float64
	// StepMeters is the largest displacement per tick.
	StepMeters float64
	Seed       int64
	Now        func() time.Time
}

// Walker emits one fix per interval from a bounded random walk. It is a
// suture service.
type Walker struct {
	platform *Platform
	cfg      WalkerConfig
	rng      *rand.Rand
	lat, lon float64
}

// NewWalker returns a walker driving platform.
func NewWalker(platform *Platform, cfg WalkerConfig) *Walker {
	if cfg.StepMeters <= 0 {
		cfg.StepMeters = 250
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := uint64(cfg.Seed)
	return &Walker{
		platform: platform,
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		lat:      cfg.Latitude,
		lon:      cfg.Longitude,
	}
}

// Next advances the walk and returns the new fix.
func (w *Walker) Next() models.Fix {
	dn := (w.rng.Float64()*2 - 1) * w.cfg.StepMeters
	de := (w.rng.Float64()*2 - 1) * w.cfg.StepMeters

	w.lat = clamp(w.lat+dn/metersPerDegree, -89.9, 89.9)
	w.lon += de / (metersPerDegree * math.Cos(w.lat*math.Pi/180))
	if w.lon > 180 {
		w.lon -= 360
	} else if w.lon < -180 {
		w.lon += 360
	}

	fix := models.NewFix(w.lat, w.lon, w.cfg.Now())
	fix.HorizontalAccuracy = 65 + w.rng.Float64()*3000
	if w.cfg.Interval > 0 {
		fix.Speed = math.Hypot(dn, de) / w.cfg.Interval.Seconds()
	}
	fix.Course = math.Mod(math.Atan2(de, dn)*180/math.Pi+360, 360)
	return fix
}

// Serve emits fixes until ctx is done. A zero interval disables the walk.
func (w *Walker) Serve(ctx context.Context) error {
	if w.cfg.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	logger := logging.WithComponent("simulator")
	logger.Info().Dur("interval", w.cfg.Interval).Msg("Simulated walk started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fix := w.Next()
			if !w.platform.Emit(fix) {
				logger.Trace().Msg("Simulated fix discarded, platform idle")
			}
		}
	}
}

func (w *Walker) String() string { return "location-simulator" }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
