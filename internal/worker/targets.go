// Package worker provides background jobs for RoadPulse.
package worker

import (
	"time"

	"github.com/breatheroute/roadpulse/internal/viewport"
)

// Target is a named viewport whose road network is fetched ahead of use.
type Target struct {
	// Name is the human-readable name of the target.
	Name string

	// Viewport selects the query region. A viewport without a query radius
	// is skipped.
	Viewport viewport.State
}

// WarmConfig holds configuration for the road cache warm job.
type WarmConfig struct {
	// Targets are the regions to warm.
	Targets []Target

	// Concurrency is the number of concurrent fetches.
	// Default: 3
	Concurrency int

	// Timeout bounds each fetch.
	// Default: 30 seconds
	Timeout time.Duration
}

// Default warm settings.
const (
	DefaultConcurrency = 3
	DefaultTimeout     = 30 * time.Second
)

// city is a regional center warmed at the default zoom.
type city struct {
	name     string
	lat, lon float64
}

var cities = []city{
	{name: "Barcelona", lat: 41.3870, lon: 2.1701},
	{name: "Girona", lat: 41.9794, lon: 2.8214},
	{name: "Lleida", lat: 41.6176, lon: 0.6200},
	{name: "Tarragona", lat: 41.1189, lon: 1.2445},
}

// DefaultTargets returns the start viewport one zoom level around the default,
// followed by the regional centers at the default zoom, all sized width x height.
func DefaultTargets(width, height int) []Target {
	start := viewport.Default(width, height)

	targets := []Target{
		{Name: "start-out", Viewport: start.WithZoom(viewport.DefaultZoom - 1)},
		{Name: "start", Viewport: start},
		{Name: "start-in", Viewport: start.WithZoom(viewport.DefaultZoom + 1)},
	}
	for _, c := range cities {
		targets = append(targets, Target{
			Name:     c.name,
			Viewport: viewport.New(c.lat, c.lon, viewport.DefaultZoom, width, height),
		})
	}
	return targets
}

// DefaultWarmConfig returns the default warm configuration for a viewer size.
func DefaultWarmConfig(width, height int) WarmConfig {
	return WarmConfig{
		Targets:     DefaultTargets(width, height),
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
	}
}
