package models

import (
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
)

// ViewportRequest is the body of PUT /v1/viewport.
type ViewportRequest struct {
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Zoom   *float64 `json:"zoom"`
	Width  *int     `json:"width"`
	Height *int     `json:"height"`
}

// Validate returns a field error for every missing or out-of-range field.
func (r ViewportRequest) Validate() []FieldError {
	var errs []FieldError
	requireRange := func(field string, v *float64, lo, hi float64) {
		switch {
		case v == nil:
			errs = append(errs, FieldError{Field: field, Message: "required", Code: "REQUIRED"})
		case *v < lo || *v > hi:
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("must be between %g and %g", lo, hi), Code: "OUT_OF_RANGE"})
		}
	}
	requireSize := func(field string, v *int) {
		switch {
		case v == nil:
			errs = append(errs, FieldError{Field: field, Message: "required", Code: "REQUIRED"})
		case *v < 0:
			errs = append(errs, FieldError{Field: field, Message: "must not be negative", Code: "OUT_OF_RANGE"})
		}
	}

	requireRange("lat", r.Lat, -90, 90)
	requireRange("lon", r.Lon, -180, 180)
	requireRange("zoom", r.Zoom, 0, 24)
	requireSize("width", r.Width)
	requireSize("height", r.Height)
	return errs
}

// TimeRequest is the body of PUT /v1/time. Either Time, or Date and/or Hour.
type TimeRequest struct {
	Time *Timestamp `json:"time,omitempty"`
	Date *string    `json:"date,omitempty"`
	Hour *int       `json:"hour,omitempty"`
}

// DateLayout is the format of TimeRequest.Date.
const DateLayout = "2006-01-02"

// Validate checks that exactly one form of time selection is present.
func (r TimeRequest) Validate() []FieldError {
	switch {
	case r.Time == nil && r.Date == nil && r.Hour == nil:
		return []FieldError{{Field: "time", Message: "one of time, date or hour is required", Code: "REQUIRED"}}
	case r.Time != nil && (r.Date != nil || r.Hour != nil):
		return []FieldError{{Field: "time", Message: "time cannot be combined with date or hour", Code: "CONFLICT"}}
	}
	if r.Date != nil {
		if _, err := time.Parse(DateLayout, *r.Date); err != nil {
			return []FieldError{{Field: "date", Message: "must be formatted as YYYY-MM-DD", Code: "INVALID_FORMAT"}}
		}
	}
	return nil
}

// ParsedDate returns the calendar date of Date. Call Validate first.
func (r TimeRequest) ParsedDate() (int, time.Month, int) {
	d, _ := time.Parse(DateLayout, *r.Date)
	return d.Date()
}

// Viewport is the current map viewport with its derived query radius.
type Viewport struct {
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Zoom              float64 `json:"zoom"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	QueryRadiusMeters float64 `json:"queryRadiusMeters"`
}

// Playback is the playback state exposed to the time UI.
type Playback struct {
	CurrentTime Timestamp `json:"currentTime"`
	IsPlaying   bool      `json:"isPlaying"`
	MinTime     Timestamp `json:"minTime"`
	MaxTime     Timestamp `json:"maxTime"`
}

// Load is the load state exposed to the busy indicator.
type Load struct {
	IsLoading bool   `json:"isLoading"`
	Epoch     uint64 `json:"epoch"`
	ShowBusy  bool   `json:"showBusy"`
}

// Sample is one pollutant sample for the heat layer.
type Sample struct {
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
	Value float64 `json:"value"`
}

// SnapshotStats summarizes the join of a snapshot.
type SnapshotStats struct {
	Roads   int `json:"roads"`
	Matched int `json:"matched"`
	Skipped int `json:"skipped"`
	Samples int `json:"samples"`
}

// EncodedRoad is a styled road with polyline-encoded geometry.
type EncodedRoad struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Class string   `json:"type,omitempty"`
	Lines []string `json:"lines"`
	Color [3]uint8 `json:"color"`
	Width float64  `json:"width"`
	Value *float64 `json:"value,omitempty"`
}

// Snapshot is one consistent load result.
type Snapshot struct {
	Epoch        uint64                     `json:"epoch"`
	Time         Timestamp                  `json:"time"`
	LoadedAt     Timestamp                  `json:"loadedAt"`
	Stats        SnapshotStats              `json:"stats"`
	Roads        *geojson.FeatureCollection `json:"roads,omitempty"`
	EncodedRoads []EncodedRoad              `json:"encodedRoads,omitempty"`
	Samples      []Sample                   `json:"samples"`
}

// View is the response of GET /v1/view and of every state-changing endpoint.
type View struct {
	Viewport Viewport  `json:"viewport"`
	Playback Playback  `json:"playback"`
	Load     Load      `json:"load"`
	Snapshot *Snapshot `json:"snapshot"`
}

// LegendBucket is one color bucket, selected by values at or above Min.
type LegendBucket struct {
	Min   float64  `json:"min"`
	Color [3]uint8 `json:"color"`
}

// Legend describes the color and width scales.
type Legend struct {
	Pollutant     string         `json:"pollutant"`
	Buckets       []LegendBucket `json:"buckets"`
	WidthDomain   [2]float64     `json:"widthDomain"`
	WidthRange    [2]float64     `json:"widthRange"`
	FallbackColor [3]uint8       `json:"fallbackColor"`
	FallbackWidth float64        `json:"fallbackWidth"`
}
