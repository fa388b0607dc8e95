package visualizer

import (
	"github.com/paulmach/orb/geojson"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/loader"
	"github.com/breatheroute/roadpulse/internal/roads"
	"github.com/breatheroute/roadpulse/internal/styling"
)

// StyledRoad is one road with its rendering style.
type StyledRoad struct {
	Road  roads.Road
	Style styling.Style
}

// StyleRoads styles every road of a snapshot from its value map.
// Roads missing from the map carry the fallback style.
func StyleRoads(snap *loader.Snapshot) []StyledRoad {
	if snap == nil {
		return []StyledRoad{}
	}
	styler := styling.NewStyler(snap.Values)
	out := make([]StyledRoad, 0, len(snap.Roads))
	for _, r := range snap.Roads {
		out = append(out, StyledRoad{Road: r, Style: styler.Style(r.ID)})
	}
	return out
}

// RoadsFeatureCollection renders the roads of a snapshot as GeoJSON. Every
// feature carries "color" and "width" properties, and "value" when matched.
func RoadsFeatureCollection(snap *loader.Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, sr := range StyleRoads(snap) {
		f := sr.Road.Feature()
		f.Properties["color"] = sr.Style.Color
		f.Properties["width"] = sr.Style.Width
		if sr.Style.Matched {
			f.Properties["value"] = sr.Style.Value
		}
		fc.Append(f)
	}
	return fc
}

// HeatPoints returns the raw samples of a snapshot for the density layer.
func HeatPoints(snap *loader.Snapshot) []airquality.Sample {
	if snap == nil {
		return []airquality.Sample{}
	}
	return snap.Samples
}
