package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/dataservice/cache"
	"github.com/breatheroute/roadpulse/internal/observability"
	"github.com/breatheroute/roadpulse/internal/roads"
	"github.com/breatheroute/roadpulse/internal/viewport"
	"github.com/breatheroute/roadpulse/internal/worker"
)

// countingSource returns one road per call and fails for queries west of failWestOf.
type countingSource struct {
	mu         sync.Mutex
	calls      int
	queries    []dataservice.Query
	failWestOf float64
	block      chan struct{}
}

func (s *countingSource) FetchSamples(context.Context, dataservice.Query) ([]airquality.Sample, error) {
	return nil, errors.New("not used")
}

func (s *countingSource) FetchRoads(ctx context.Context, q dataservice.Query) ([]roads.Road, error) {
	s.mu.Lock()
	s.calls++
	s.queries = append(s.queries, q)
	s.mu.Unlock()

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if q.Lon < s.failWestOf {
		return nil, errors.New("upstream unavailable")
	}
	return []roads.Road{{ID: "r1", Geometry: orb.LineString{{q.Lon, q.Lat}, {q.Lon + 0.01, q.Lat}}}}, nil
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestDefaultTargets(t *testing.T) {
	targets := worker.DefaultTargets(1280, 720)
	require.GreaterOrEqual(t, len(targets), 4)

	assert.Equal(t, "start", targets[1].Name)
	assert.Equal(t, viewport.Default(1280, 720), targets[1].Viewport)
	assert.Equal(t, viewport.DefaultZoom-1, targets[0].Viewport.Zoom)
	assert.Equal(t, viewport.DefaultZoom+1, targets[2].Viewport.Zoom)

	var barcelona *worker.Target
	for i := range targets {
		assert.True(t, targets[i].Viewport.HasQuery(), targets[i].Name)
		if targets[i].Name == "Barcelona" {
			barcelona = &targets[i]
		}
	}
	require.NotNil(t, barcelona, "Barcelona should be in targets")
	assert.Equal(t, viewport.DefaultZoom, barcelona.Viewport.Zoom)
}

func TestDefaultWarmConfig(t *testing.T) {
	cfg := worker.DefaultWarmConfig(800, 600)

	assert.Equal(t, worker.DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, worker.DefaultTimeout, cfg.Timeout)
	assert.Len(t, cfg.Targets, len(worker.DefaultTargets(800, 600)))
}

func TestWarmJob_Run(t *testing.T) {
	src := &countingSource{failWestOf: -180}
	metrics := observability.NewMetricsForTesting()

	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config:  worker.DefaultWarmConfig(1280, 720),
		Source:  src,
		Logger:  zerolog.Nop(),
		Clock:   clockwork.NewFakeClock(),
		Metrics: metrics,
	})

	result := job.Run(context.Background())

	total := len(worker.DefaultTargets(1280, 720))
	assert.Equal(t, total, result.Total)
	assert.Equal(t, total, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Equal(t, total, result.Roads)
	assert.Empty(t, result.Errors)
	assert.Equal(t, total, src.callCount())
	assert.Equal(t, float64(total), testutil.ToFloat64(metrics.WarmRegions.WithLabelValues("success")))

	for _, q := range src.queries {
		assert.Positive(t, q.RadiusMeters)
		assert.True(t, q.Time.IsZero())
	}
}

func TestWarmJob_FailuresAndSkips(t *testing.T) {
	src := &countingSource{failWestOf: 1.0}
	metrics := observability.NewMetricsForTesting()

	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: worker.WarmConfig{
			Targets: []worker.Target{
				{Name: "east", Viewport: viewport.New(41.39, 2.11, 15, 800, 600)},
				{Name: "west", Viewport: viewport.New(41.62, 0.62, 15, 800, 600)},
				{Name: "hidden", Viewport: viewport.New(41.39, 2.11, 15, 0, 600)},
			},
			Concurrency: 2,
		},
		Source:  src,
		Logger:  zerolog.Nop(),
		Metrics: metrics,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "west", result.Errors[0].Target)
	assert.Contains(t, result.Errors[0].Error, "upstream unavailable")
	assert.Equal(t, 2, src.callCount(), "a viewport without a query must not be fetched")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WarmRegions.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WarmRegions.WithLabelValues("skipped")))
}

func TestWarmJob_PerTargetTimeout(t *testing.T) {
	src := &countingSource{failWestOf: -180, block: make(chan struct{})}
	defer close(src.block)

	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: worker.WarmConfig{
			Targets: []worker.Target{{Name: "slow", Viewport: viewport.Default(800, 600)}},
			Timeout: 20 * time.Millisecond,
		},
		Source: src,
		Logger: zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, context.DeadlineExceeded.Error())
}

func TestWarmJob_CanceledContextStopsWork(t *testing.T) {
	src := &countingSource{failWestOf: -180}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: worker.DefaultWarmConfig(800, 600),
		Source: src,
		Logger: zerolog.Nop(),
	})

	result := job.Run(ctx)

	assert.Zero(t, result.Successful)
	assert.Zero(t, src.callCount())
}

func TestWarmJob_FillsRoadCache(t *testing.T) {
	upstream := &countingSource{failWestOf: -180}
	cached := cache.New(upstream, cache.Config{Size: 16, TTL: time.Minute})
	start := viewport.Default(1280, 720)

	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: worker.WarmConfig{Targets: []worker.Target{{Name: "start", Viewport: start}}},
		Source: cached,
		Logger: zerolog.Nop(),
	})
	job.Run(context.Background())
	require.Equal(t, 1, cached.Len())

	_, err := cached.FetchRoads(context.Background(), dataservice.Query{
		Lat:          start.Latitude,
		Lon:          start.Longitude,
		RadiusMeters: start.QueryRadiusMeters(),
		Time:         time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.callCount(), "warmed region must be served from cache")
}

func TestWarmJob_Stats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	job := worker.NewWarmJob(worker.WarmJobConfig{
		Config: worker.WarmConfig{Targets: []worker.Target{{Name: "start", Viewport: viewport.Default(800, 600)}}},
		Source: &countingSource{failWestOf: -180},
		Logger: zerolog.Nop(),
		Clock:  clock,
	})

	job.Run(context.Background())
	job.Run(context.Background())

	stats := job.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(2), stats.Successful)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, clock.Now(), stats.LastRunAt)
}
