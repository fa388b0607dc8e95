package styling

// ValueLookup resolves the matched value of a road.
type ValueLookup interface {
	Get(roadID string) (float64, bool)
}

// Style is the rendering style of a single road.
type Style struct {
	Color   RGB
	Width   float64
	Value   float64
	Matched bool
}

// Styler styles roads from a value lookup.
type Styler struct {
	values ValueLookup
}

// NewStyler creates a Styler. A nil lookup styles every road with the fallback.
func NewStyler(values ValueLookup) Styler {
	return Styler{values: values}
}

// Color returns the road color, or FallbackColor when the road is unmatched.
func (s Styler) Color(roadID string) RGB {
	return s.Style(roadID).Color
}

// Width returns the road line width, or FallbackWidth when the road is unmatched.
func (s Styler) Width(roadID string) float64 {
	return s.Style(roadID).Width
}

// Style returns the full style for a road.
func (s Styler) Style(roadID string) Style {
	if s.values == nil {
		return Style{Color: FallbackColor, Width: FallbackWidth}
	}
	v, ok := s.values.Get(roadID)
	if !ok {
		return Style{Color: FallbackColor, Width: FallbackWidth}
	}
	return Style{
		Color:   ColorOf(v),
		Width:   WidthOf(v),
		Value:   v,
		Matched: true,
	}
}
