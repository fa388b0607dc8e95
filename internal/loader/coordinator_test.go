package loader_test

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
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/loader"
	"github.com/breatheroute/roadpulse/internal/observability"
	"github.com/breatheroute/roadpulse/internal/roads"
)

// response is what the fake source returns for one query hour.
type response struct {
	gate       chan struct{}
	samples    []airquality.Sample
	samplesErr error
	roads      []roads.Road
	roadsErr   error
}

type fakeSource struct {
	mu        sync.Mutex
	responses map[int]*response
	started   chan int
}

func newFakeSource() *fakeSource {
	return &fakeSource{responses: make(map[int]*response), started: make(chan int, 16)}
}

func (f *fakeSource) set(hour int, r *response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[hour] = r
}

func (f *fakeSource) get(hour int) *response {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.responses[hour]; ok {
		return r
	}
	return &response{}
}

func (f *fakeSource) wait(ctx context.Context, r *response) error {
	if r.gate == nil {
		return nil
	}
	select {
	case <-r.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSource) FetchSamples(ctx context.Context, q dataservice.Query) ([]airquality.Sample, error) {
	f.started <- q.Time.Hour()
	r := f.get(q.Time.Hour())
	if err := f.wait(ctx, r); err != nil {
		return nil, err
	}
	return r.samples, r.samplesErr
}

func (f *fakeSource) FetchRoads(ctx context.Context, q dataservice.Query) ([]roads.Road, error) {
	r := f.get(q.Time.Hour())
	if err := f.wait(ctx, r); err != nil {
		return nil, err
	}
	return r.roads, r.roadsErr
}

func queryAt(hour int) dataservice.Query {
	return dataservice.Query{
		Lat:          41.39,
		Lon:          2.11,
		RadiusMeters: 774,
		Time:         time.Date(2023, 1, 1, hour, 0, 0, 0, time.UTC),
	}
}

func network(id string) []roads.Road {
	return []roads.Road{{ID: id, Geometry: orb.LineString{{2.10, 41.38}, {2.12, 41.40}}}}
}

func withValue(v float64) []airquality.Sample {
	return []airquality.Sample{{Lon: 2.11, Lat: 41.39, Value: v}}
}

type result struct {
	snap *loader.Snapshot
	err  error
}

func loadAsync(c *loader.Coordinator, q dataservice.Query) <-chan result {
	out := make(chan result, 1)
	go func() {
		snap, err := c.Load(context.Background(), q)
		out <- result{snap: snap, err: err}
	}()
	return out
}

func TestLoad_AppliesSnapshot(t *testing.T) {
	src := newFakeSource()
	src.set(2, &response{samples: withValue(0.05), roads: network("r1")})

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	var applied *loader.Snapshot
	c := loader.New(loader.Config{
		Source:  src,
		Logger:  zerolog.Nop(),
		Clock:   clock,
		OnApply: func(s *loader.Snapshot) { applied = s },
	})

	snap, err := c.Load(context.Background(), queryAt(2))
	require.NoError(t, err)
	require.NotNil(t, snap)

	v, ok := snap.Values.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 0.05, v)
	assert.Equal(t, uint64(1), snap.Epoch)
	assert.Equal(t, clock.Now(), snap.LoadedAt)
	assert.Same(t, snap, c.Current())
	assert.Same(t, snap, applied)
	assert.Equal(t, loader.LoadState{IsLoading: false, Epoch: 1}, c.State())
}

func TestLoad_EmptySamplesYieldZero(t *testing.T) {
	src := newFakeSource()
	src.set(2, &response{samples: []airquality.Sample{}, roads: network("r1")})
	c := loader.New(loader.Config{Source: src, Logger: zerolog.Nop()})

	snap, err := c.Load(context.Background(), queryAt(2))
	require.NoError(t, err)

	v, ok := snap.Values.Get("r1")
	assert.True(t, ok)
	assert.Zero(t, v)
	assert.NotNil(t, snap.Samples)
}

func TestLoad_NoQueryDoesNotIssue(t *testing.T) {
	c := loader.New(loader.Config{Source: newFakeSource(), Logger: zerolog.Nop()})

	q := queryAt(2)
	q.RadiusMeters = 0

	snap, err := c.Load(context.Background(), q)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, dataservice.ErrNoQuery)
	assert.Equal(t, loader.LoadState{}, c.State())
}

func TestLoad_LaterIssuedWinsWhenEarlierResolvesLast(t *testing.T) {
	src := newFakeSource()
	gateA, gateB := make(chan struct{}), make(chan struct{})
	src.set(2, &response{gate: gateA, samples: withValue(0.1), roads: network("a")})
	src.set(3, &response{gate: gateB, samples: withValue(0.8), roads: network("b")})
	c := loader.New(loader.Config{Source: src, Logger: zerolog.Nop()})

	resA := loadAsync(c, queryAt(2))
	<-src.started
	resB := loadAsync(c, queryAt(3))
	<-src.started

	assert.Equal(t, loader.LoadState{IsLoading: true, Epoch: 2}, c.State())

	close(gateB)
	b := <-resB
	require.NoError(t, b.err)
	require.NotNil(t, b.snap)
	assert.False(t, c.State().IsLoading)

	close(gateA)
	a := <-resA
	assert.NoError(t, a.err)
	assert.Nil(t, a.snap)

	current := c.Current()
	require.NotNil(t, current)
	assert.Equal(t, uint64(2), current.Epoch)
	_, hasA := current.Values.Get("a")
	assert.False(t, hasA)
	v, _ := current.Values.Get("b")
	assert.Equal(t, 0.8, v)
	assert.False(t, c.State().IsLoading)
}

func TestLoad_LaterIssuedWinsWhenEarlierResolvesFirst(t *testing.T) {
	src := newFakeSource()
	gateA, gateB := make(chan struct{}), make(chan struct{})
	src.set(2, &response{gate: gateA, samples: withValue(0.1), roads: network("a")})
	src.set(3, &response{gate: gateB, samples: withValue(0.8), roads: network("b")})
	c := loader.New(loader.Config{Source: src, Logger: zerolog.Nop()})

	resA := loadAsync(c, queryAt(2))
	<-src.started
	resB := loadAsync(c, queryAt(3))
	<-src.started

	close(gateA)
	a := <-resA
	assert.NoError(t, a.err)
	assert.Nil(t, a.snap)
	assert.Nil(t, c.Current(), "superseded data must never become visible")
	assert.True(t, c.State().IsLoading, "newer load still outstanding")

	close(gateB)
	b := <-resB
	require.NoError(t, b.err)
	assert.Same(t, b.snap, c.Current())
	assert.False(t, c.State().IsLoading)
}

func TestLoad_FailureKeepsPreviousSnapshot(t *testing.T) {
	src := newFakeSource()
	src.set(2, &response{samples: withValue(0.3), roads: network("r1")})
	src.set(3, &response{samplesErr: dataservice.ErrEmptyResponse, roads: network("r2")})
	src.set(4, &response{samples: withValue(0.3), roadsErr: dataservice.ErrMalformedResponse})
	c := loader.New(loader.Config{Source: src, Logger: zerolog.Nop()})

	first, err := c.Load(context.Background(), queryAt(2))
	require.NoError(t, err)

	snap, err := c.Load(context.Background(), queryAt(3))
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, dataservice.ErrEmptyResponse)
	assert.Same(t, first, c.Current())
	assert.False(t, c.State().IsLoading)

	snap, err = c.Load(context.Background(), queryAt(4))
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, dataservice.ErrMalformedResponse)
	assert.Same(t, first, c.Current())
	assert.Equal(t, loader.LoadState{IsLoading: false, Epoch: 3}, c.State())
}

func TestLoad_SupersededFailureIsSilent(t *testing.T) {
	src := newFakeSource()
	gateA, gateB := make(chan struct{}), make(chan struct{})
	src.set(2, &response{gate: gateA, samplesErr: errors.New("connection reset")})
	src.set(3, &response{gate: gateB, samples: withValue(0.2), roads: network("b")})
	c := loader.New(loader.Config{Source: src, Logger: zerolog.Nop()})

	resA := loadAsync(c, queryAt(2))
	<-src.started
	resB := loadAsync(c, queryAt(3))
	<-src.started

	close(gateA)
	a := <-resA
	assert.NoError(t, a.err)
	assert.Nil(t, a.snap)
	assert.True(t, c.State().IsLoading)

	close(gateB)
	require.NoError(t, (<-resB).err)
	assert.False(t, c.State().IsLoading)
}

func TestLoad_Metrics(t *testing.T) {
	src := newFakeSource()
	src.set(2, &response{samples: withValue(0.3), roads: append(network("r1"), roads.Road{ID: "bad", Geometry: orb.LineString{{0, 0}}})})
	src.set(3, &response{samplesErr: errors.New("boom")})
	m := observability.NewMetricsForTesting()
	c := loader.New(loader.Config{Source: src, Logger: zerolog.Nop(), Metrics: m})

	_, err := c.Load(context.Background(), queryAt(2))
	require.NoError(t, err)
	_, err = c.Load(context.Background(), queryAt(3))
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoadsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoadsSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoadsMatched))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LoadInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("samples", "error")))
}

func TestLoad_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	src := newFakeSource()
	src.set(2, &response{samples: withValue(0.3), roads: network("r1")})
	c := loader.New(loader.Config{Source: src, Logger: zerolog.Nop(), Tracer: tp.Tracer("test")})

	_, err := c.Load(context.Background(), queryAt(2))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "loader.Load", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("load.epoch", 1))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("load.roads", 1))
}
