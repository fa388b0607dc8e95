// Package playback advances the selected time one hour per tick while playing.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/observability"
)

// DefaultInterval is the wall-clock time between ticks.
const DefaultInterval = 3 * time.Second

// Playback errors.
var (
	// ErrPlaying is returned for manual edits while playback is running.
	ErrPlaying = errors.New("playback is running")

	// ErrOutOfRange is returned for a manual edit outside the selectable range.
	ErrOutOfRange = errors.New("time outside the selectable range")

	// ErrClosed is returned after the controller has been closed.
	ErrClosed = errors.New("playback controller is closed")
)

// State is the playback mode.
type State int

// Playback states.
const (
	Paused State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	CurrentTime time.Time `json:"currentTime"`
	IsPlaying   bool      `json:"isPlaying"`
}

// Range bounds manual time edits. Ticks are not bounded.
type Range struct {
	Min time.Time
	Max time.Time
}

// Contains reports whether t lies within the range, inclusive.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Min) && !t.After(r.Max)
}

// DefaultStart returns the initial selected time in loc: 2023-01-01 02:00.
func DefaultStart(loc *time.Location) time.Time {
	return time.Date(2023, time.January, 1, 2, 0, 0, 0, loc)
}

// DefaultRange returns the selectable range in loc: 2023-01-01 02:00 to 2023-12-31 23:00.
func DefaultRange(loc *time.Location) Range {
	return Range{
		Min: DefaultStart(loc),
		Max: time.Date(2023, time.December, 31, 23, 0, 0, 0, loc),
	}
}

// Config holds configuration for the controller.
type Config struct {
	// Clock drives the tick timer. Defaults to the real clock.
	Clock clockwork.Clock

	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration

	// Location of the selected time. Defaults to UTC.
	Location *time.Location

	// Start is the initial time. Defaults to DefaultStart.
	Start time.Time

	// Range bounds manual edits. Defaults to DefaultRange.
	Range *Range

	// OnTick is called with the new time after every tick, outside the lock.
	OnTick func(time.Time)

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Controller is the Paused/Playing state machine owning the tick timer.
type Controller struct {
	clock    clockwork.Clock
	interval time.Duration
	loc      *time.Location
	bounds   Range
	onTick   func(time.Time)
	logger   zerolog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	current time.Time
	state   State
	closed  bool
	stop    chan struct{} // non-nil while playing; closed exactly once to cancel the timer
	done    chan struct{} // closed when the timer goroutine has exited
}

// New creates a paused controller.
func New(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	start := cfg.Start
	if start.IsZero() {
		start = DefaultStart(loc)
	}
	bounds := DefaultRange(loc)
	if cfg.Range != nil {
		bounds = *cfg.Range
	}

	return &Controller{
		clock:    clock,
		interval: interval,
		loc:      loc,
		bounds:   bounds,
		onTick:   cfg.OnTick,
		logger:   cfg.Logger.With().Str("component", "playback").Logger(),
		metrics:  cfg.Metrics,
		current:  hourOf(start.In(loc)),
	}
}

// Status returns the current time and mode.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{CurrentTime: c.current, IsPlaying: c.state == Playing}
}

// State returns the current mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTime returns the selected time.
func (c *Controller) CurrentTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Range returns the bounds of manual edits.
func (c *Controller) Range() Range {
	return c.bounds
}

// Play starts the tick timer. Playing again is a no-op.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state == Playing {
		return nil
	}

	c.state = Playing
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.clock.NewTicker(c.interval), c.stop, c.done)

	if c.metrics != nil {
		c.metrics.PlaybackPlaying.Set(1)
	}
	c.logger.Info().Time("from", c.current).Msg("playback started")
	return nil
}

// Stop cancels the tick timer. Stopping while paused is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
}

// Close stops playback permanently and waits for the timer goroutine to exit.
// It must not be called from OnTick.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.pauseLocked()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (c *Controller) pauseLocked() {
	if c.state != Playing {
		return
	}
	c.state = Paused
	close(c.stop)
	c.stop = nil

	if c.metrics != nil {
		c.metrics.PlaybackPlaying.Set(0)
	}
	c.logger.Info().Time("at", c.current).Msg("playback stopped")
}

// Tick advances the time by one hour if playing. It reports the new time and
// whether it advanced.
func (c *Controller) Tick() (time.Time, bool) {
	c.mu.Lock()
	t, ok := c.advanceLocked(c.stop)
	c.mu.Unlock()

	if ok && c.onTick != nil {
		c.onTick(t)
	}
	return t, ok
}

// advanceLocked advances only for the timer generation identified by stop.
func (c *Controller) advanceLocked(stop chan struct{}) (time.Time, bool) {
	if c.state != Playing || stop == nil || stop != c.stop {
		return c.current, false
	}
	c.current = c.current.Add(time.Hour)
	if c.metrics != nil {
		c.metrics.PlaybackTicks.Inc()
	}
	return c.current, true
}

func (c *Controller) run(ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			t, ok := c.advanceLocked(stop)
			c.mu.Unlock()

			if !ok {
				return
			}
			c.logger.Debug().Time("time", t).Msg("tick")
			if c.onTick != nil {
				c.onTick(t)
			}
		}
	}
}

// SetTime selects t, truncated to the hour. Rejected while playing.
func (c *Controller) SetTime(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(hourOf(t.In(c.loc)))
}

// SetDate replaces the calendar date and keeps the selected hour.
func (c *Controller) SetDate(year int, month time.Month, day int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(time.Date(year, month, day, c.current.Hour(), 0, 0, 0, c.loc))
}

// SetHour replaces the hour and keeps the selected date.
func (c *Controller) SetHour(hour int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hour < 0 || hour > 23 {
		return fmt.Errorf("hour %d: %w", hour, ErrOutOfRange)
	}
	y, m, d := c.current.Date()
	return c.setLocked(time.Date(y, m, d, hour, 0, 0, 0, c.loc))
}

func (c *Controller) setLocked(t time.Time) error {
	if c.closed {
		return ErrClosed
	}
	if c.state == Playing {
		return ErrPlaying
	}
	if !c.bounds.Contains(t) {
		return fmt.Errorf("%s: %w", t.Format(time.RFC3339), ErrOutOfRange)
	}
	c.current = t
	return nil
}

func hourOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
