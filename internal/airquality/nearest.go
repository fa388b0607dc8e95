package airquality

import (
	"math"

	"github.com/paulmach/orb"
)

// NearestIndex returns the index of the sample closest to p, or -1 if there are no samples.
//
// Distance is squared Euclidean distance in raw lon/lat degrees, which is only
// meaningful at city scale. Ties keep the first sample in input order.
func NearestIndex(p orb.Point, samples []Sample) int {
	best := -1
	minDistance := math.Inf(1)

	for i, s := range samples {
		dLon := s.Lon - p.Lon()
		dLat := s.Lat - p.Lat()
		d := dLon*dLon + dLat*dLat
		if d < minDistance {
			minDistance = d
			best = i
		}
	}
	return best
}

// Nearest returns the value of the sample closest to p.
// An empty sample set means no data and yields 0.
func Nearest(p orb.Point, samples []Sample) float64 {
	i := NearestIndex(p, samples)
	if i < 0 {
		return 0
	}
	return samples[i].Value
}
