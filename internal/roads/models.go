// Package roads provides road network geometries and their representative points.
package roads

import (
	"errors"

	"github.com/paulmach/orb"
)

// ErrInvalidGeometry is returned when a road geometry has no usable segment.
var ErrInvalidGeometry = errors.New("invalid road geometry")

// Road is one road feature of the network.
type Road struct {
	// ID identifies the road within one load.
	ID string

	// Name is the road's display name.
	Name string

	// Class is the road classification (e.g. "motorway").
	Class string

	// State is the administrative state reported by the data service.
	State string

	// Length is the reported road length in meters, if known.
	Length float64

	// Geometry is an orb.LineString or orb.MultiLineString in lon/lat order.
	Geometry orb.Geometry
}

// Centroid returns the representative point of the road.
func (r Road) Centroid() (orb.Point, error) {
	return Centroid(r.Geometry)
}
