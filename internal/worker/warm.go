package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/observability"
)

// Warm outcomes, used as the Prometheus outcome label.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomeSkipped = "skipped"
)

// WarmJob fetches the road networks of a fixed set of regions through a
// caching source so that the first view of each region is served from cache.
type WarmJob struct {
	config  WarmConfig
	source  dataservice.Source
	logger  zerolog.Logger
	clock   clockwork.Clock
	metrics *observability.Metrics

	statsMu sync.RWMutex
	stats   WarmStats
}

// WarmStats accumulates warm job statistics across runs.
type WarmStats struct {
	Runs         int64
	Successful   int64
	Failed       int64
	Skipped      int64
	LastRunAt    time.Time
	LastDuration time.Duration
}

// WarmJobConfig holds configuration for creating a WarmJob.
type WarmJobConfig struct {
	Config WarmConfig

	// Source is usually the road cache decorator.
	Source dataservice.Source

	Logger  zerolog.Logger
	Clock   clockwork.Clock
	Metrics *observability.Metrics
}

// NewWarmJob creates a warm job. Zero concurrency and timeout take defaults.
func NewWarmJob(cfg WarmJobConfig) *WarmJob {
	config := cfg.Config
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &WarmJob{
		config:  config,
		source:  cfg.Source,
		logger:  cfg.Logger,
		clock:   clock,
		metrics: cfg.Metrics,
	}
}

// WarmResult contains the result of one run.
type WarmResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Skipped    int
	Roads      int
	Errors     []WarmError
}

// WarmError records a failed target.
type WarmError struct {
	Target string
	Error  string
}

type targetResult struct {
	target  Target
	outcome string
	roads   int
	err     error
}

// Run fetches the roads of every target. Targets not yet started when ctx is
// done are left out of the result counts.
func (j *WarmJob) Run(ctx context.Context) *WarmResult {
	start := j.clock.Now()
	result := &WarmResult{
		StartTime: start,
		Total:     len(j.config.Targets),
	}

	j.logger.Info().
		Int("targets", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting road cache warm")

	targets := make(chan Target, len(j.config.Targets))
	results := make(chan targetResult, len(j.config.Targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.worker(ctx, targets, results)
		}()
	}

	for _, t := range j.config.Targets {
		targets <- t
	}
	close(targets)

	go func() {
		wg.Wait()
		close(results)
	}()

	for tr := range results {
		switch tr.outcome {
		case outcomeSuccess:
			result.Successful++
			result.Roads += tr.roads
		case outcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors, WarmError{Target: tr.target.Name, Error: tr.err.Error()})
		}
		if j.metrics != nil {
			j.metrics.WarmRegions.WithLabelValues(tr.outcome).Inc()
		}
	}

	result.EndTime = j.clock.Now()
	result.Duration = result.EndTime.Sub(start)
	j.record(result)

	level := zerolog.InfoLevel
	if result.Failed > 0 {
		level = zerolog.WarnLevel
	}
	j.logger.WithLevel(level).
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("roads", result.Roads).
		Msg("road cache warm completed")

	return result
}

func (j *WarmJob) worker(ctx context.Context, targets <-chan Target, results chan<- targetResult) {
	for t := range targets {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.warm(ctx, t)
		}
	}
}

func (j *WarmJob) warm(ctx context.Context, t Target) targetResult {
	if !t.Viewport.HasQuery() {
		return targetResult{target: t, outcome: outcomeSkipped}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	q := dataservice.Query{
		Lat:          t.Viewport.Latitude,
		Lon:          t.Viewport.Longitude,
		RadiusMeters: t.Viewport.QueryRadiusMeters(),
	}
	rs, err := j.source.FetchRoads(fetchCtx, q)
	if err != nil {
		j.logger.Debug().Err(err).Str("target", t.Name).Stringer("query", q).Msg("warm fetch failed")
		return targetResult{target: t, outcome: outcomeError, err: err}
	}
	return targetResult{target: t, outcome: outcomeSuccess, roads: len(rs)}
}

func (j *WarmJob) record(result *WarmResult) {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()

	j.stats.Runs++
	j.stats.Successful += int64(result.Successful)
	j.stats.Failed += int64(result.Failed)
	j.stats.Skipped += int64(result.Skipped)
	j.stats.LastRunAt = result.EndTime
	j.stats.LastDuration = result.Duration
}

// Stats returns a copy of the accumulated statistics.
func (j *WarmJob) Stats() WarmStats {
	j.statsMu.RLock()
	defer j.statsMu.RUnlock()
	return j.stats
}
