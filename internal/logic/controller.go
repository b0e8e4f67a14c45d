package logic

import (
	"context"
	"time"

	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/logger"
)

// Controller runs the two-phase timer and drives the relay.
// Only the goroutine calling Run (or Start/Step in tests) may use it;
// request handlers talk to the shared State instead.
type Controller struct {
	state     *State
	out       gpio.Writer
	poll      time.Duration
	activeLow bool
	now       func() time.Time
	events    chan Event

	// loop-private
	phaseStart time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithPoll sets the polling interval. Non-positive values are ignored.
func WithPoll(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithActiveLow selects whether the relay energises on a low (true,
// the default for common relay boards) or high output.
func WithActiveLow(activeLow bool) Option {
	return func(c *Controller) {
		c.activeLow = activeLow
	}
}

// WithEvents enables the event channel with the given buffer size.
// Events that do not fit are dropped.
func WithEvents(buffer int) Option {
	return func(c *Controller) {
		c.events = make(chan Event, buffer)
	}
}

// NewController creates a Controller operating on state and out.
func NewController(state *State, out gpio.Writer, opts ...Option) *Controller {
	c := &Controller{
		state:     state,
		out:       out,
		poll:      DefaultPoll,
		activeLow: true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the event channel, or nil if WithEvents was not given.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Poll returns the polling interval.
func (c *Controller) Poll() time.Duration {
	return c.poll
}

// Run drives the relay until ctx is cancelled, stepping on every tick.
// After a phase transition it steps again without waiting. A reset or
// configuration change wakes it early. On return the relay is left idle.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) error {
	c.Start(c.now())
	defer c.release()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.Step(c.now()) {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case <-c.state.wake:
		}
	}
}

// Start enters the ON phase. This is the startup entry and does not
// count as a cycle.
func (c *Controller) Start(now time.Time) {
	s := c.state
	s.mu.Lock()
	s.phase = PhaseOn
	s.elapsed = 0
	s.phaseDuration = s.durations.Pulse
	c.phaseStart = now
	ev := c.eventLocked(EventPumpOn, now)
	s.mu.Unlock()

	logger.Info().Dur("pulse", ev.Durations.Pulse).Dur("pause", ev.Durations.Pause).Msg("Pump cycle started")
	c.drive(PhaseOn)
	c.emit(ev)
}

// Step advances the machine to now. It reports whether a phase
// transition fired.
func (c *Controller) Step(now time.Time) bool {
	s := c.state
	var reset *Event

	s.mu.Lock()
	if s.resetPending {
		s.resetPending = false
		c.phaseStart = now
		s.elapsed = 0
		s.phaseDuration = s.durations.For(s.phase)
		ev := c.eventLocked(EventReset, now)
		reset = &ev
	}

	elapsed := now.Sub(c.phaseStart)
	if elapsed < 0 {
		elapsed = 0
	}
	live := s.durations.For(s.phase)
	s.elapsed = min(elapsed, live)
	s.phaseDuration = live

	if elapsed < c.effective(live) {
		s.mu.Unlock()
		if reset != nil {
			logger.Info().Str("phase", string(reset.Phase)).Msg("Phase timer reset")
			c.emit(*reset)
		}
		return false
	}

	next := s.phase.Other()
	s.phase = next
	s.elapsed = 0
	s.phaseDuration = s.durations.For(next)
	if next == PhaseOn {
		s.cycles++
	}
	c.phaseStart = now
	ev := c.eventLocked(eventFor(next), now)
	s.mu.Unlock()

	if reset != nil {
		c.emit(*reset)
	}
	logger.Debug().Str("phase", string(next)).Int("cycles", ev.Cycles).Msg("Phase transition")
	c.drive(next)
	c.emit(ev)
	return true
}

// effective clamps d to the polling interval so a tiny duration cannot
// spin the loop.
func (c *Controller) effective(d time.Duration) time.Duration {
	if d < c.poll {
		return c.poll
	}
	return d
}

// Level returns the relay level for phase p.
func (c *Controller) Level(p Phase) gpio.Level {
	on := p == PhaseOn
	if on == c.activeLow {
		return gpio.Low
	}
	return gpio.High
}

func (c *Controller) drive(p Phase) {
	if err := c.out.Write(c.Level(p)); err != nil {
		c.state.mu.Lock()
		c.state.writeErrors++
		c.state.mu.Unlock()
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrActuatorWrite, err)).
			Str("phase", string(p)).
			Msg("Relay write failed, continuing")
	}
}

// release leaves the relay in its idle (OFF) level.
func (c *Controller) release() {
	if err := c.out.Write(c.Level(PhaseOff)); err != nil {
		logger.Warn().Err(err).Msg("Failed to idle relay on shutdown")
	}
	logger.Info().Msg("Pump cycle stopped")
}

func (c *Controller) eventLocked(t EventType, now time.Time) Event {
	return Event{
		Timestamp: now,
		Type:      t,
		Phase:     c.state.phase,
		Cycles:    c.state.cycles,
		Durations: c.state.durations,
	}
}

func (c *Controller) emit(ev Event) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	default:
		logger.Warn().Str("event", string(ev.Type)).Msg("Event buffer full, dropping event")
	}
}
