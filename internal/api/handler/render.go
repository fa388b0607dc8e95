package handler

import (
	"fmt"

	"github.com/breatheroute/roadpulse/internal/api/models"
	"github.com/breatheroute/roadpulse/internal/loader"
	"github.com/breatheroute/roadpulse/internal/styling"
	"github.com/breatheroute/roadpulse/internal/visualizer"
	"github.com/breatheroute/roadpulse/pkg/polyline"
)

// Road geometry encodings accepted by the format query parameter.
const (
	FormatGeoJSON  = "geojson"
	FormatPolyline = "polyline"
)

func parseFormat(raw string) (string, error) {
	switch raw {
	case "", FormatGeoJSON:
		return FormatGeoJSON, nil
	case FormatPolyline:
		return FormatPolyline, nil
	default:
		return "", fmt.Errorf("format must be %q or %q", FormatGeoJSON, FormatPolyline)
	}
}

func toViewModel(v visualizer.View, format string) models.View {
	return models.View{
		Viewport: models.Viewport{
			Lat:               v.Viewport.Latitude,
			Lon:               v.Viewport.Longitude,
			Zoom:              v.Viewport.Zoom,
			Width:             v.Viewport.PixelWidth,
			Height:            v.Viewport.PixelHeight,
			QueryRadiusMeters: v.Viewport.QueryRadiusMeters(),
		},
		Playback: models.Playback{
			CurrentTime: models.Timestamp(v.Playback.CurrentTime),
			IsPlaying:   v.Playback.IsPlaying,
			MinTime:     models.Timestamp(v.Range.Min),
			MaxTime:     models.Timestamp(v.Range.Max),
		},
		Load: models.Load{
			IsLoading: v.Load.IsLoading,
			Epoch:     v.Load.Epoch,
			ShowBusy:  v.ShowBusy,
		},
		Snapshot: toSnapshotModel(v.Snapshot, format),
	}
}

func toSnapshotModel(snap *loader.Snapshot, format string) *models.Snapshot {
	if snap == nil {
		return nil
	}

	out := &models.Snapshot{
		Epoch:    snap.Epoch,
		Time:     models.Timestamp(snap.Query.Time),
		LoadedAt: models.Timestamp(snap.LoadedAt),
		Stats: models.SnapshotStats{
			Roads:   snap.Stats.Roads,
			Matched: snap.Stats.Matched,
			Skipped: snap.Stats.Skipped,
			Samples: snap.Stats.Samples,
		},
		Samples: make([]models.Sample, 0, len(snap.Samples)),
	}
	for _, s := range visualizer.HeatPoints(snap) {
		out.Samples = append(out.Samples, models.Sample{Lon: s.Lon, Lat: s.Lat, Value: s.Value})
	}

	if format == FormatPolyline {
		out.EncodedRoads = encodeRoads(snap)
	} else {
		out.Roads = visualizer.RoadsFeatureCollection(snap)
	}
	return out
}

func encodeRoads(snap *loader.Snapshot) []models.EncodedRoad {
	styled := visualizer.StyleRoads(snap)
	out := make([]models.EncodedRoad, 0, len(styled))
	for _, sr := range styled {
		er := models.EncodedRoad{
			ID:    sr.Road.ID,
			Name:  sr.Road.Name,
			Class: sr.Road.Class,
			Lines: polyline.EncodeGeometry(sr.Road.Geometry),
			Color: sr.Style.Color,
			Width: sr.Style.Width,
		}
		if sr.Style.Matched {
			v := sr.Style.Value
			er.Value = &v
		}
		out = append(out, er)
	}
	return out
}

func legendModel(pollutant string) models.Legend {
	thresholds := styling.Thresholds()
	ramp := styling.Ramp()
	buckets := make([]models.LegendBucket, len(thresholds))
	for i := range thresholds {
		buckets[i] = models.LegendBucket{Min: thresholds[i], Color: ramp[i]}
	}
	domain, pixels := styling.WidthScale()

	return models.Legend{
		Pollutant:     pollutant,
		Buckets:       buckets,
		WidthDomain:   domain,
		WidthRange:    pixels,
		FallbackColor: styling.FallbackColor,
		FallbackWidth: styling.FallbackWidth,
	}
}
