package visualizer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/playback"
	"github.com/breatheroute/roadpulse/internal/roads"
	"github.com/breatheroute/roadpulse/internal/styling"
	"github.com/breatheroute/roadpulse/internal/viewport"
	"github.com/breatheroute/roadpulse/internal/visualizer"
)

// stubSource serves one road and a sample whose value is the query hour / 100.
// While gate is set, fetches block until it is closed or the context ends.
type stubSource struct {
	mu      sync.Mutex
	gate    chan struct{}
	queries []dataservice.Query
}

func (s *stubSource) block() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *stubSource) wait(ctx context.Context) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubSource) FetchSamples(ctx context.Context, q dataservice.Query) ([]airquality.Sample, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return []airquality.Sample{{Lon: 2.11, Lat: 41.39, Value: float64(q.Time.Hour()) / 100}}, nil
}

func (s *stubSource) FetchRoads(ctx context.Context, _ dataservice.Query) ([]roads.Road, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return []roads.Road{
		{ID: "r1", Name: "Diagonal", Geometry: orb.LineString{{2.10, 41.38}, {2.12, 41.40}}},
		{ID: "broken", Geometry: orb.LineString{{2.10, 41.38}}},
	}, nil
}

func (s *stubSource) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func newSession(t *testing.T, src *stubSource, vp viewport.State) (*visualizer.Session, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := visualizer.New(visualizer.Config{
		Source:   src,
		Viewport: vp,
		Location: time.UTC,
		Clock:    clock,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	return s, clock
}

func TestSession_RefreshLoadsDefaultView(t *testing.T) {
	src := &stubSource{}
	s, _ := newSession(t, src, viewport.Default(1280, 720))

	snap, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	v, ok := snap.Values.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 0.02, v)

	view := s.View()
	assert.True(t, s.Ready())
	assert.False(t, view.ShowBusy)
	assert.False(t, view.Playback.IsPlaying)
	assert.Same(t, snap, view.Snapshot)

	q := snap.Query
	assert.Equal(t, viewport.DefaultLatitude, q.Lat)
	assert.Equal(t, viewport.DefaultLongitude, q.Lon)
	assert.Equal(t, viewport.Default(1280, 720).QueryRadiusMeters(), q.RadiusMeters)
	assert.Equal(t, playback.DefaultStart(time.UTC), q.Time)
}

func TestSession_EmptyViewportIsNotFetched(t *testing.T) {
	src := &stubSource{}
	s, _ := newSession(t, src, viewport.Default(0, 0))

	snap, err := s.Refresh(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, snap)
	assert.False(t, s.Ready())
	assert.Zero(t, src.queryCount())
	assert.Zero(t, s.View().Load.Epoch)
}

func TestSession_SetViewportRecomputesRadius(t *testing.T) {
	src := &stubSource{}
	s, _ := newSession(t, src, viewport.Default(0, 0))

	vp := viewport.New(41.40, 2.15, 16, 800, 600)
	snap, err := s.SetViewport(context.Background(), vp)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, viewport.ComputeQueryRadius(41.40, 16, 800, 600), snap.Query.RadiusMeters)
	assert.Equal(t, vp, s.View().Viewport)
}

func TestSession_TimeEditsReload(t *testing.T) {
	src := &stubSource{}
	s, _ := newSession(t, src, viewport.Default(1280, 720))

	snap, err := s.SetTime(context.Background(), time.Date(2023, 5, 5, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 9, snap.Query.Time.Hour())

	snap, err = s.SetDate(context.Background(), 2023, time.June, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC), snap.Query.Time)

	snap, err = s.SetHour(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 1, 20, 0, 0, 0, time.UTC), snap.Query.Time)

	_, err = s.SetHour(context.Background(), 30)
	assert.ErrorIs(t, err, playback.ErrOutOfRange)
}

func TestSession_PlaybackTicksLoadNextHour(t *testing.T) {
	src := &stubSource{}
	s, clock := newSession(t, src, viewport.Default(1280, 720))
	t0 := s.View().Playback.CurrentTime

	require.NoError(t, s.Play())

	for i := 1; i <= 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		cancel()
		clock.Advance(playback.DefaultInterval)

		want := t0.Add(time.Duration(i) * time.Hour)
		require.Eventually(t, func() bool {
			snap := s.View().Snapshot
			return snap != nil && snap.Query.Time.Equal(want)
		}, time.Second, 5*time.Millisecond)
	}

	view := s.View()
	assert.True(t, view.Playback.IsPlaying)
	assert.Equal(t, t0.Add(3*time.Hour), view.Playback.CurrentTime)
}

func TestSession_InteractionRejectedWhilePlaying(t *testing.T) {
	src := &stubSource{}
	s, _ := newSession(t, src, viewport.Default(1280, 720))
	require.NoError(t, s.Play())

	_, err := s.SetViewport(context.Background(), viewport.Default(640, 480))
	assert.ErrorIs(t, err, playback.ErrPlaying)
	_, err = s.SetTime(context.Background(), time.Date(2023, 5, 5, 9, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, playback.ErrPlaying)
	assert.Equal(t, viewport.Default(1280, 720), s.View().Viewport)

	s.Stop()
	_, err = s.SetViewport(context.Background(), viewport.Default(640, 480))
	assert.NoError(t, err)
}

func TestSession_ShowBusyOnlyWhenPaused(t *testing.T) {
	src := &stubSource{}
	s, _ := newSession(t, src, viewport.Default(1280, 720))
	gate := src.block()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Refresh(context.Background())
	}()

	require.Eventually(t, func() bool { return s.View().Load.IsLoading }, time.Second, 5*time.Millisecond)
	assert.True(t, s.View().ShowBusy)

	require.NoError(t, s.Play())
	view := s.View()
	assert.True(t, view.Load.IsLoading)
	assert.False(t, view.ShowBusy)

	close(gate)
	<-done
	assert.False(t, s.View().Load.IsLoading)
}

func TestSession_CloseCancelsTickLoads(t *testing.T) {
	src := &stubSource{}
	s, clock := newSession(t, src, viewport.Default(1280, 720))
	src.block()

	require.NoError(t, s.Play())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(playback.DefaultInterval)
	require.Eventually(t, func() bool { return src.queryCount() == 1 }, time.Second, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}

	assert.False(t, s.View().Playback.IsPlaying)
	assert.ErrorIs(t, s.Play(), visualizer.ErrClosed)
	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, visualizer.ErrClosed)
}

func TestRoadsFeatureCollection(t *testing.T) {
	src := &stubSource{}
	s, _ := newSession(t, src, viewport.Default(1280, 720))

	snap, err := s.Refresh(context.Background())
	require.NoError(t, err)

	fc := visualizer.RoadsFeatureCollection(snap)
	require.Len(t, fc.Features, 2)

	matched := fc.Features[0]
	assert.Equal(t, "r1", matched.ID)
	assert.Equal(t, styling.ColorOf(0.02), matched.Properties["color"])
	assert.InDelta(t, 10.4, matched.Properties["width"], 1e-9)
	assert.Equal(t, 0.02, matched.Properties["value"])

	broken := fc.Features[1]
	assert.Equal(t, styling.FallbackColor, broken.Properties["color"])
	assert.Equal(t, styling.FallbackWidth, broken.Properties["width"])
	assert.NotContains(t, broken.Properties, "value")

	assert.Len(t, visualizer.HeatPoints(snap), 1)
	assert.Empty(t, visualizer.RoadsFeatureCollection(nil).Features)
	assert.Empty(t, visualizer.HeatPoints(nil))
}
