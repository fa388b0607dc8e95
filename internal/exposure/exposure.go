// Package exposure joins road geometries with pollutant samples into per-road values.
package exposure

import (
	"encoding/json"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/roads"
)

// Map is an immutable mapping from road ID to matched pollutant value.
// It is rebuilt wholesale for every (roads, samples) pair and never updated in place.
type Map struct {
	values map[string]float64
}

// Get returns the matched value for a road.
func (m Map) Get(roadID string) (float64, bool) {
	v, ok := m.values[roadID]
	return v, ok
}

// Len returns the number of matched roads.
func (m Map) Len() int {
	return len(m.values)
}

// Each calls fn for every entry in unspecified order.
func (m Map) Each(fn func(roadID string, value float64)) {
	for id, v := range m.values {
		fn(id, v)
	}
}

// MarshalJSON encodes the map as a JSON object keyed by road ID.
func (m Map) MarshalJSON() ([]byte, error) {
	if m.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.values)
}

// Stats describes one join run.
type Stats struct {
	Roads   int
	Matched int
	Skipped int
	Samples int
}

// Build matches every road's centroid to its nearest sample.
//
// Roads with an invalid geometry are skipped and left out of the map; they
// render with fallback styling. With no samples every valid road gets 0.
func Build(rs []roads.Road, samples []airquality.Sample) (Map, Stats) {
	values := make(map[string]float64, len(rs))
	stats := Stats{Roads: len(rs), Samples: len(samples)}

	for _, r := range rs {
		center, err := r.Centroid()
		if err != nil {
			stats.Skipped++
			continue
		}
		values[r.ID] = airquality.Nearest(center, samples)
	}

	stats.Matched = len(values)
	return Map{values: values}, stats
}
