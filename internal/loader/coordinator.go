// Package loader fetches the datasets of a query region, joins them, and
// publishes the result only if no newer load has been issued in the meantime.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/exposure"
	"github.com/breatheroute/roadpulse/internal/observability"
	"github.com/breatheroute/roadpulse/internal/roads"
)

const tracerName = "github.com/breatheroute/roadpulse/internal/loader"

// Snapshot is one consistent (samples, roads, values) triple produced by a single load.
// Snapshots are never modified after they are published.
type Snapshot struct {
	Epoch    uint64
	Query    dataservice.Query
	Samples  []airquality.Sample
	Roads    []roads.Road
	Values   exposure.Map
	Stats    exposure.Stats
	LoadedAt time.Time
}

// LoadState reports whether the latest load is outstanding and its epoch.
type LoadState struct {
	IsLoading bool   `json:"isLoading"`
	Epoch     uint64 `json:"epoch"`
}

// Config holds configuration for the coordinator.
type Config struct {
	// Source fetches samples and roads.
	Source dataservice.Source

	// Logger receives load outcomes.
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *observability.Metrics

	// Tracer defaults to the global OpenTelemetry tracer.
	Tracer trace.Tracer

	// Clock stamps snapshots. Defaults to the real clock.
	Clock clockwork.Clock

	// OnApply is called after a snapshot becomes current, outside the lock.
	OnApply func(*Snapshot)
}

// Coordinator runs loads and keeps the most recently applied snapshot.
type Coordinator struct {
	source  dataservice.Source
	logger  zerolog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	clock   clockwork.Clock
	onApply func(*Snapshot)

	mu      sync.Mutex
	epoch   uint64
	loading bool
	current *Snapshot
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Coordinator{
		source:  cfg.Source,
		logger:  cfg.Logger.With().Str("component", "loader").Logger(),
		metrics: cfg.Metrics,
		tracer:  tracer,
		clock:   clock,
		onApply: cfg.OnApply,
	}
}

// Load fetches both datasets for q concurrently and joins them.
//
// The result is applied only if no newer load was issued while this one was in
// flight. A superseded load returns (nil, nil) whether it succeeded or failed.
// A failed current load keeps the previous snapshot and returns the error.
// In-flight fetches are never cancelled by a newer load.
func (c *Coordinator) Load(ctx context.Context, q dataservice.Query) (*Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	epoch := c.begin()

	ctx, span := c.tracer.Start(ctx, "loader.Load", trace.WithAttributes(
		attribute.Int64("load.epoch", int64(epoch)), //nolint:gosec // epochs stay far below MaxInt64
		attribute.Float64("load.lat", q.Lat),
		attribute.Float64("load.lon", q.Lon),
		attribute.Float64("load.radius_m", q.RadiusMeters),
		attribute.String("load.time", q.Time.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	log := c.logger.With().Uint64("epoch", epoch).Stringer("query", q).Logger()

	start := c.clock.Now()
	samples, rs, err := c.fetch(ctx, q)
	if c.metrics != nil {
		c.metrics.LoadDuration.Observe(c.clock.Since(start).Seconds())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !c.fail(epoch) {
			span.SetAttributes(attribute.Bool("load.superseded", true))
			log.Debug().Err(err).Msg("superseded load failed")
			return nil, nil
		}
		log.Warn().Err(err).Msg("load failed, keeping previous snapshot")
		return nil, fmt.Errorf("load %s: %w", q, err)
	}

	if !c.isCurrent(epoch) {
		c.supersede()
		span.SetAttributes(attribute.Bool("load.superseded", true))
		log.Debug().Msg("discarding superseded load")
		return nil, nil
	}

	joinStart := c.clock.Now()
	values, stats := exposure.Build(rs, samples)
	if c.metrics != nil {
		c.metrics.JoinDuration.Observe(c.clock.Since(joinStart).Seconds())
		c.metrics.RoadsSkipped.Add(float64(stats.Skipped))
	}

	snap := &Snapshot{
		Epoch:    epoch,
		Query:    q,
		Samples:  samples,
		Roads:    rs,
		Values:   values,
		Stats:    stats,
		LoadedAt: c.clock.Now(),
	}

	if !c.apply(snap) {
		span.SetAttributes(attribute.Bool("load.superseded", true))
		log.Debug().Msg("discarding superseded load")
		return nil, nil
	}

	span.SetAttributes(
		attribute.Int("load.roads", stats.Roads),
		attribute.Int("load.samples", stats.Samples),
		attribute.Int("load.skipped", stats.Skipped),
	)
	log.Info().
		Int("roads", stats.Roads).
		Int("matched", stats.Matched).
		Int("skipped", stats.Skipped).
		Int("samples", stats.Samples).
		Msg("snapshot applied")

	if c.onApply != nil {
		c.onApply(snap)
	}
	return snap, nil
}

// Current returns the most recently applied snapshot, or nil before the first one.
func (c *Coordinator) Current() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the current load state.
func (c *Coordinator) State() LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LoadState{IsLoading: c.loading, Epoch: c.epoch}
}

func (c *Coordinator) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.loading = true
	if c.metrics != nil {
		c.metrics.LoadsStarted.Inc()
		c.metrics.LoadInFlight.Set(1)
	}
	return c.epoch
}

func (c *Coordinator) isCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return epoch == c.epoch
}

// fail clears the loading flag if epoch is still current and reports whether it was.
func (c *Coordinator) fail(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		c.countSuperseded()
		return false
	}
	c.loading = false
	if c.metrics != nil {
		c.metrics.LoadsFailed.Inc()
		c.metrics.LoadInFlight.Set(0)
	}
	return true
}

func (c *Coordinator) supersede() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countSuperseded()
}

// apply publishes snap if its epoch is still current.
func (c *Coordinator) apply(snap *Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.Epoch != c.epoch {
		c.countSuperseded()
		return false
	}
	c.current = snap
	c.loading = false
	if c.metrics != nil {
		c.metrics.LoadsApplied.Inc()
		c.metrics.LoadInFlight.Set(0)
		c.metrics.RoadsMatched.Set(float64(snap.Stats.Matched))
		c.metrics.SamplesLoaded.Set(float64(snap.Stats.Samples))
	}
	return true
}

func (c *Coordinator) countSuperseded() {
	if c.metrics != nil {
		c.metrics.LoadsSuperseded.Inc()
	}
}

func (c *Coordinator) fetch(ctx context.Context, q dataservice.Query) ([]airquality.Sample, []roads.Road, error) {
	var (
		samples []airquality.Sample
		rs      []roads.Road
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		samples, err = c.source.FetchSamples(gctx, q)
		c.countFetch("samples", err)
		if err != nil {
			return fmt.Errorf("samples: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rs, err = c.source.FetchRoads(gctx, q)
		c.countFetch("roads", err)
		if err != nil {
			return fmt.Errorf("roads: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if samples == nil {
		samples = []airquality.Sample{}
	}
	if rs == nil {
		rs = []roads.Road{}
	}
	return samples, rs, nil
}

func (c *Coordinator) countFetch(dataset string, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.FetchRequests.WithLabelValues(dataset, outcome).Inc()
}
