// Package dataservice defines the boundary to the backend that serves pollutant
// samples and road geometries for a query region.
package dataservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/roads"
)

// Data service errors.
var (
	// ErrNoQuery is returned for a query without a positive radius.
	ErrNoQuery = errors.New("query region is empty")

	// ErrEmptyResponse is returned when the service answers without a payload.
	ErrEmptyResponse = errors.New("empty response from data service")

	// ErrMalformedResponse is returned when a payload cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response from data service")
)

// Query selects the data for a circular region at a point in time.
type Query struct {
	Lat          float64
	Lon          float64
	RadiusMeters float64
	Time         time.Time
}

// Validate reports whether the query describes a fetchable region.
func (q Query) Validate() error {
	if q.RadiusMeters <= 0 {
		return ErrNoQuery
	}
	return nil
}

// String renders the query for logs.
func (q Query) String() string {
	return fmt.Sprintf("(%.6f,%.6f r=%.0fm t=%s)", q.Lat, q.Lon, q.RadiusMeters, q.Time.UTC().Format(time.RFC3339))
}

// Source fetches the two datasets of a load.
type Source interface {
	// FetchSamples returns the pollutant samples in the region at q.Time.
	FetchSamples(ctx context.Context, q Query) ([]airquality.Sample, error)

	// FetchRoads returns the road geometries in the region. Time is ignored.
	FetchRoads(ctx context.Context, q Query) ([]roads.Road, error)
}
