// Package polyline encodes orb line strings with Google's polyline algorithm.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"math"

	"github.com/paulmach/orb"
)

// Precision is the number of decimal places kept by Encode (standard Google format).
const Precision = 5

var factor = math.Pow10(Precision)

// Decode decodes a polyline-encoded string into a line string in lon/lat order.
func Decode(encoded string) orb.LineString {
	if encoded == "" {
		return nil
	}

	var line orb.LineString
	index := 0
	lat := 0
	lon := 0

	for index < len(encoded) {
		latDelta, next := decodeValue(encoded, index)
		index = next
		lat += latDelta

		lonDelta, next := decodeValue(encoded, index)
		index = next
		lon += lonDelta

		line = append(line, orb.Point{float64(lon) / factor, float64(lat) / factor})
	}

	return line
}

// decodeValue decodes a single value at index and returns it with the next index.
func decodeValue(encoded string, index int) (int, int) {
	shift := 0
	result := 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

// Encode encodes a line string. The polyline stores latitude first.
func Encode(line orb.LineString) string {
	if len(line) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(line)*4)
	prevLat := 0
	prevLon := 0

	for _, p := range line {
		lat := int(math.Round(p.Lat() * factor))
		lon := int(math.Round(p.Lon() * factor))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat = lat
		prevLon = lon
	}

	return string(encoded)
}

// EncodeGeometry encodes every line of a LineString or MultiLineString.
// Other geometry types yield nil.
func EncodeGeometry(g orb.Geometry) []string {
	switch geom := g.(type) {
	case orb.LineString:
		return []string{Encode(geom)}
	case orb.MultiLineString:
		out := make([]string, 0, len(geom))
		for _, line := range geom {
			out = append(out, Encode(line))
		}
		return out
	default:
		return nil
	}
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	buf = append(buf, byte(value)+63)

	return buf
}
