// Package visualizer ties the viewport, playback controller and load
// coordinator into one interactive session.
package visualizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/loader"
	"github.com/breatheroute/roadpulse/internal/observability"
	"github.com/breatheroute/roadpulse/internal/playback"
	"github.com/breatheroute/roadpulse/internal/viewport"
)

// ErrClosed is returned after the session has been closed.
var ErrClosed = errors.New("session is closed")

// Config holds configuration for a session.
type Config struct {
	Source   dataservice.Source
	Viewport viewport.State
	Location *time.Location
	Clock    clockwork.Clock
	Interval time.Duration
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// View is everything the rendering and time UI collaborators need.
type View struct {
	Viewport viewport.State
	Playback playback.Status
	Range    playback.Range
	Load     loader.LoadState

	// ShowBusy is true while loading, except during playback.
	ShowBusy bool

	// Snapshot is nil until the first load is applied.
	Snapshot *loader.Snapshot
}

// Session is one interactive map session.
type Session struct {
	loader   *loader.Coordinator
	playback *playback.Controller
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	viewport viewport.State
	closed   bool
}

// New creates a paused session at the configured viewport and default time.
func New(cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		logger:   cfg.Logger.With().Str("component", "session").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		viewport: cfg.Viewport,
	}

	s.loader = loader.New(loader.Config{
		Source:  cfg.Source,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
		Clock:   cfg.Clock,
	})
	s.playback = playback.New(playback.Config{
		Clock:    cfg.Clock,
		Interval: cfg.Interval,
		Location: cfg.Location,
		OnTick:   s.onTick,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})

	return s
}

// Refresh loads data for the current viewport and time.
func (s *Session) Refresh(ctx context.Context) (*loader.Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	q := s.queryLocked(s.playback.CurrentTime())
	s.mu.Unlock()

	return s.load(ctx, q)
}

// SetViewport replaces the viewport and loads its data. Rejected while playing.
func (s *Session) SetViewport(ctx context.Context, vp viewport.State) (*loader.Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.playback.State() == playback.Playing {
		s.mu.Unlock()
		return nil, playback.ErrPlaying
	}
	s.viewport = vp
	q := s.queryLocked(s.playback.CurrentTime())
	s.mu.Unlock()

	return s.load(ctx, q)
}

// SetTime selects a time and loads its data. Rejected while playing.
func (s *Session) SetTime(ctx context.Context, t time.Time) (*loader.Snapshot, error) {
	return s.edit(ctx, func() error { return s.playback.SetTime(t) })
}

// SetDate replaces the selected date, keeping the hour. Rejected while playing.
func (s *Session) SetDate(ctx context.Context, year int, month time.Month, day int) (*loader.Snapshot, error) {
	return s.edit(ctx, func() error { return s.playback.SetDate(year, month, day) })
}

// SetHour replaces the selected hour, keeping the date. Rejected while playing.
func (s *Session) SetHour(ctx context.Context, hour int) (*loader.Snapshot, error) {
	return s.edit(ctx, func() error { return s.playback.SetHour(hour) })
}

func (s *Session) edit(ctx context.Context, apply func() error) (*loader.Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if err := apply(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	q := s.queryLocked(s.playback.CurrentTime())
	s.mu.Unlock()

	return s.load(ctx, q)
}

// Play starts playback. Every tick loads the next hour in the background.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.playback.Play()
}

// Stop pauses playback.
func (s *Session) Stop() {
	s.playback.Stop()
}

// View returns the current state of the session.
func (s *Session) View() View {
	s.mu.Lock()
	vp := s.viewport
	s.mu.Unlock()

	status := s.playback.Status()
	load := s.loader.State()

	return View{
		Viewport: vp,
		Playback: status,
		Range:    s.playback.Range(),
		Load:     load,
		ShowBusy: load.IsLoading && !status.IsPlaying,
		Snapshot: s.loader.Current(),
	}
}

// Ready reports whether a snapshot has been applied.
func (s *Session) Ready() bool {
	return s.loader.Current() != nil
}

// Close stops playback, cancels outstanding tick loads and waits for them.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.playback.Close()
	s.cancel()
	s.wg.Wait()
}

// onTick runs on the playback timer goroutine; the load must not block it.
func (s *Session) onTick(t time.Time) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	q := s.queryLocked(t)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if _, err := s.load(s.ctx, q); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Time("time", t).Msg("playback load failed")
		}
	}()
}

func (s *Session) queryLocked(t time.Time) dataservice.Query {
	return dataservice.Query{
		Lat:          s.viewport.Latitude,
		Lon:          s.viewport.Longitude,
		RadiusMeters: s.viewport.QueryRadiusMeters(),
		Time:         t,
	}
}

// load treats an empty viewport as nothing to fetch.
func (s *Session) load(ctx context.Context, q dataservice.Query) (*loader.Snapshot, error) {
	snap, err := s.loader.Load(ctx, q)
	if errors.Is(err, dataservice.ErrNoQuery) {
		s.logger.Debug().Msg("viewport has no area, skipping load")
		return nil, nil
	}
	return snap, err
}
