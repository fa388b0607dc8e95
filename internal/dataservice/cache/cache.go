// Package cache provides a dataservice.Source decorator that caches road networks.
package cache

import (
	"context"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/roads"
)

// Default cache settings.
const (
	DefaultSize = 64
	DefaultTTL  = 10 * time.Minute
)

// Config holds configuration for the road cache.
type Config struct {
	// Size is the maximum number of cached regions.
	Size int

	// TTL is how long a cached road network stays valid.
	TTL time.Duration
}

type regionKey struct {
	lat, lon, radius int64
}

// keyFor quantizes the region to 1e-7 degrees and whole meters.
func keyFor(q dataservice.Query) regionKey {
	return regionKey{
		lat:    int64(math.Round(q.Lat * 1e7)),
		lon:    int64(math.Round(q.Lon * 1e7)),
		radius: int64(math.Round(q.RadiusMeters)),
	}
}

// Source caches FetchRoads results per region. Roads do not depend on the
// query time, so playback ticks over a fixed viewport only fetch samples.
// Samples are always fetched from the wrapped source.
type Source struct {
	next  dataservice.Source
	roads *expirable.LRU[regionKey, []roads.Road]
}

var _ dataservice.Source = (*Source)(nil)

// New wraps next with a road cache.
func New(next dataservice.Source, cfg Config) *Source {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Source{
		next:  next,
		roads: expirable.NewLRU[regionKey, []roads.Road](cfg.Size, nil, cfg.TTL),
	}
}

// FetchSamples delegates to the wrapped source.
func (s *Source) FetchSamples(ctx context.Context, q dataservice.Query) ([]airquality.Sample, error) {
	return s.next.FetchSamples(ctx, q)
}

// FetchRoads returns the cached network for the region or fetches and caches it.
// Errors are not cached.
func (s *Source) FetchRoads(ctx context.Context, q dataservice.Query) ([]roads.Road, error) {
	key := keyFor(q)
	if rs, ok := s.roads.Get(key); ok {
		return rs, nil
	}

	rs, err := s.next.FetchRoads(ctx, q)
	if err != nil {
		return nil, err
	}

	s.roads.Add(key, rs)
	return rs, nil
}

// Len returns the number of cached regions.
func (s *Source) Len() int {
	return s.roads.Len()
}

// Purge drops every cached region.
func (s *Source) Purge() {
	s.roads.Purge()
}
