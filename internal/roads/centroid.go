package roads

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Centroid returns a cheap representative point for a road geometry.
//
// For a line it is the midpoint of its first and last points; interior points
// are ignored. For a multi-line it is the unweighted mean of the endpoint
// midpoints of every segment with at least two points. Any other geometry
// type, or a geometry without a usable segment, yields ErrInvalidGeometry.
func Centroid(g orb.Geometry) (orb.Point, error) {
	switch geom := g.(type) {
	case orb.LineString:
		if len(geom) < 2 {
			return orb.Point{}, fmt.Errorf("line with %d points: %w", len(geom), ErrInvalidGeometry)
		}
		return endpointMidpoint(geom), nil

	case orb.MultiLineString:
		var sumLon, sumLat float64
		n := 0
		for _, line := range geom {
			if len(line) < 2 {
				continue
			}
			mid := endpointMidpoint(line)
			sumLon += mid[0]
			sumLat += mid[1]
			n++
		}
		if n == 0 {
			return orb.Point{}, fmt.Errorf("multi-line without a segment of 2+ points: %w", ErrInvalidGeometry)
		}
		return orb.Point{sumLon / float64(n), sumLat / float64(n)}, nil

	case nil:
		return orb.Point{}, fmt.Errorf("missing geometry: %w", ErrInvalidGeometry)

	default:
		return orb.Point{}, fmt.Errorf("unsupported geometry %s: %w", g.GeoJSONType(), ErrInvalidGeometry)
	}
}

func endpointMidpoint(line orb.LineString) orb.Point {
	start := line[0]
	end := line[len(line)-1]
	return orb.Point{(start[0] + end[0]) / 2, (start[1] + end[1]) / 2}
}
