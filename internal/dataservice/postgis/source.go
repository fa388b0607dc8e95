// Package postgis provides a dataservice.Source that reads samples and roads
// directly from a PostGIS database.
package postgis

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/roads"
)

// Querier is the subset of pgxpool.Pool used by the source.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Samples are stored per hour; geom is a geography(Point, 4326).
const samplesQuery = `
SELECT ST_Y(geom::geometry), ST_X(geom::geometry), value
FROM air_quality_samples
WHERE measured_at = $4
  AND ST_DWithin(geom, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
ORDER BY id`

const roadsQuery = `
SELECT id::text, COALESCE(name, ''), COALESCE(type, ''), COALESCE(state, ''),
       COALESCE(length, 0), ST_AsGeoJSON(geom::geometry)
FROM roads
WHERE ST_DWithin(geom, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
ORDER BY id`

// Source reads the datasets of a load with PostGIS distance queries.
type Source struct {
	db Querier
}

var _ dataservice.Source = (*Source)(nil)

// NewSource creates a new PostGIS-backed source.
func NewSource(db Querier) *Source {
	return &Source{db: db}
}

// FetchSamples returns the samples within the query radius measured at the query hour.
func (s *Source) FetchSamples(ctx context.Context, q dataservice.Query) ([]airquality.Sample, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, samplesQuery, q.Lat, q.Lon, q.RadiusMeters, q.Time.UTC().Truncate(time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := make([]airquality.Sample, 0)
	for rows.Next() {
		var smp airquality.Sample
		if err := rows.Scan(&smp.Lat, &smp.Lon, &smp.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}

	return samples, nil
}

// FetchRoads returns the roads within the query radius.
func (s *Source) FetchRoads(ctx context.Context, q dataservice.Query) ([]roads.Road, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, roadsQuery, q.Lat, q.Lon, q.RadiusMeters)
	if err != nil {
		return nil, fmt.Errorf("query roads: %w", err)
	}
	defer rows.Close()

	result := make([]roads.Road, 0)
	for rows.Next() {
		var (
			r       roads.Road
			rawGeom string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Class, &r.State, &r.Length, &rawGeom); err != nil {
			return nil, fmt.Errorf("scan road: %w", err)
		}

		g, err := geojson.UnmarshalGeometry([]byte(rawGeom))
		if err != nil {
			return nil, fmt.Errorf("decode road %s geometry: %w: %v", r.ID, dataservice.ErrMalformedResponse, err)
		}
		r.Geometry = g.Geometry()

		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roads: %w", err)
	}

	return result, nil
}
