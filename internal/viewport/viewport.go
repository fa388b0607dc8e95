// Package viewport converts map viewport state into a geographic query region.
package viewport

import "math"

const (
	// EarthCircumferenceMeters is the equatorial circumference used by Web Mercator.
	EarthCircumferenceMeters = 40075016.686

	// TileSizePx is the size of a Web Mercator tile in pixels.
	TileSizePx = 256

	// queryFraction is the share of the smaller visible extent used as query radius.
	queryFraction = 0.3
)

// Default map configuration.
const (
	DefaultLatitude  = 41.38922055290922
	DefaultLongitude = 2.113531600484349
	DefaultZoom      = 15.0
	MinZoom          = 14.0
	MaxZoom          = 22.0
)

// MetersPerPixel returns the ground resolution at a latitude and zoom level.
func MetersPerPixel(latitude, zoom float64) float64 {
	return math.Cos(latitude*math.Pi/180) * EarthCircumferenceMeters / (TileSizePx * math.Pow(2, zoom))
}

// ComputeQueryRadius returns the query radius in meters for a viewport.
// A zero pixel dimension yields 0, which callers treat as "no query".
func ComputeQueryRadius(latitude, zoom float64, pixelWidth, pixelHeight int) float64 {
	mpp := MetersPerPixel(latitude, zoom)
	widthMeters := mpp * float64(pixelWidth)
	heightMeters := mpp * float64(pixelHeight)

	radius := math.Floor(queryFraction * math.Min(widthMeters, heightMeters))
	if radius <= 0 || math.IsNaN(radius) {
		return 0
	}
	return radius
}

// State is the current map viewport. The query radius is derived on every
// read and cannot be set directly.
type State struct {
	Latitude    float64
	Longitude   float64
	Zoom        float64
	PixelWidth  int
	PixelHeight int
}

// New creates a viewport state with the zoom clamped to the map limits.
func New(latitude, longitude, zoom float64, pixelWidth, pixelHeight int) State {
	return State{
		Latitude:    latitude,
		Longitude:   longitude,
		Zoom:        ClampZoom(zoom),
		PixelWidth:  max(pixelWidth, 0),
		PixelHeight: max(pixelHeight, 0),
	}
}

// Default returns the initial viewport for the given pixel dimensions.
func Default(pixelWidth, pixelHeight int) State {
	return New(DefaultLatitude, DefaultLongitude, DefaultZoom, pixelWidth, pixelHeight)
}

// QueryRadiusMeters returns the query radius for this viewport.
func (s State) QueryRadiusMeters() float64 {
	return ComputeQueryRadius(s.Latitude, s.Zoom, s.PixelWidth, s.PixelHeight)
}

// HasQuery reports whether the viewport describes a non-empty query region.
func (s State) HasQuery() bool {
	return s.QueryRadiusMeters() > 0
}

// WithCenter returns a copy centered on the given coordinate.
func (s State) WithCenter(latitude, longitude float64) State {
	s.Latitude = latitude
	s.Longitude = longitude
	return s
}

// WithZoom returns a copy with the zoom level clamped to the map limits.
func (s State) WithZoom(zoom float64) State {
	s.Zoom = ClampZoom(zoom)
	return s
}

// WithSize returns a copy with new pixel dimensions.
func (s State) WithSize(pixelWidth, pixelHeight int) State {
	s.PixelWidth = max(pixelWidth, 0)
	s.PixelHeight = max(pixelHeight, 0)
	return s
}

// ClampZoom restricts zoom to [MinZoom, MaxZoom].
func ClampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) {
		return DefaultZoom
	}
	return math.Min(math.Max(zoom, MinZoom), MaxZoom)
}
