// Package styling maps matched pollutant values to road colors and line widths.
package styling

import "math"

// RGB is a color as red, green and blue components.
type RGB [3]uint8

// Fallback styling for roads without a matched value.
var (
	FallbackColor = RGB{200, 200, 200}
	FallbackWidth = 0.5
)

// colorThresholds are the lower bounds of each color bucket.
var colorThresholds = [...]float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

// colorRamp runs from green (clean) to dark red (polluted), one entry per bucket.
var colorRamp = [len(colorThresholds)]RGB{
	{26, 152, 80},
	{102, 189, 99},
	{166, 217, 106},
	{217, 239, 139},
	{255, 255, 191},
	{254, 224, 139},
	{253, 174, 97},
	{244, 109, 67},
	{215, 48, 39},
	{168, 0, 0},
}

const (
	widthDomainMin = 0.0
	widthDomainMax = 0.5
	widthRangeMin  = 10.0
	widthRangeMax  = 20.0
)

// Bucket returns the color bucket index for a value: the last threshold the
// value reaches. Values below the first threshold fall into bucket 0.
func Bucket(value float64) int {
	bucket := 0
	for i, threshold := range colorThresholds {
		if value >= threshold {
			bucket = i
		}
	}
	return bucket
}

// ColorOf maps a value onto the green to red ramp. NaN has no color and
// falls back to the unmatched color.
func ColorOf(value float64) RGB {
	if math.IsNaN(value) {
		return FallbackColor
	}
	return colorRamp[Bucket(value)]
}

// WidthOf maps a value linearly from [0, 0.5] to [10, 20] pixels, clamped.
func WidthOf(value float64) float64 {
	if math.IsNaN(value) {
		return FallbackWidth
	}
	t := (value - widthDomainMin) / (widthDomainMax - widthDomainMin)
	t = math.Min(math.Max(t, 0), 1)
	return widthRangeMin + t*(widthRangeMax-widthRangeMin)
}

// WidthScale returns the value domain and the pixel range of the width scale.
func WidthScale() (domain, pixels [2]float64) {
	return [2]float64{widthDomainMin, widthDomainMax}, [2]float64{widthRangeMin, widthRangeMax}
}

// Ramp returns a copy of the color ramp, lowest bucket first.
func Ramp() []RGB {
	ramp := make([]RGB, len(colorRamp))
	copy(ramp, colorRamp[:])
	return ramp
}

// Thresholds returns a copy of the bucket lower bounds.
func Thresholds() []float64 {
	t := make([]float64, len(colorThresholds))
	copy(t, colorThresholds[:])
	return t
}
