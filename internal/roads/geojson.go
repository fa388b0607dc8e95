package roads

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"
)

// FromFeature converts a GeoJSON feature into a Road.
// The feature ID is preferred; the "id" property is used when it is missing.
func FromFeature(f *geojson.Feature) Road {
	id := idString(f.ID)
	if id == "" {
		id = idString(f.Properties["id"])
	}

	return Road{
		ID:       id,
		Name:     f.Properties.MustString("name", ""),
		Class:    f.Properties.MustString("type", ""),
		State:    f.Properties.MustString("state", ""),
		Length:   f.Properties.MustFloat64("length", 0),
		Geometry: f.Geometry,
	}
}

// FromFeatureCollection converts every feature of a collection.
// Features without an identifier cannot be joined and are dropped.
func FromFeatureCollection(fc *geojson.FeatureCollection) []Road {
	result := make([]Road, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		r := FromFeature(f)
		if r.ID == "" {
			continue
		}
		result = append(result, r)
	}
	return result
}

// Feature converts the road back into a GeoJSON feature carrying its attributes.
func (r Road) Feature() *geojson.Feature {
	f := geojson.NewFeature(r.Geometry)
	f.ID = r.ID
	f.Properties["id"] = r.ID
	f.Properties["name"] = r.Name
	f.Properties["type"] = r.Class
	f.Properties["state"] = r.State
	f.Properties["length"] = r.Length
	return f
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}
