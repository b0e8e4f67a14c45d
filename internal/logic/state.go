package logic

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the shared controller state.
// All fields are captured under one lock acquisition.
type Snapshot struct {
	Durations      Durations
	Cycles         int
	Phase          Phase
	Elapsed        time.Duration
	PhaseDuration  time.Duration
	ActuatorErrors int
}

// State is the configuration and phase state shared between the control
// loop and request handlers. Every field is guarded by mu.
type State struct {
	mu sync.Mutex

	durations     Durations
	phase         Phase
	elapsed       time.Duration
	phaseDuration time.Duration
	cycles        int
	writeErrors   int

	// single slot; set again before consumption is a no-op
	resetPending bool

	// nudges the loop out of its polling wait
	wake chan struct{}
}

// NewState creates the initial state: phase OFF, nothing elapsed, no cycles.
func NewState(d Durations) *State {
	return &State{
		durations:     d,
		phase:         PhaseOff,
		phaseDuration: d.Pause,
		wake:          make(chan struct{}, 1),
	}
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Durations:      s.durations,
		Cycles:         s.cycles,
		Phase:          s.phase,
		Elapsed:        s.elapsed,
		PhaseDuration:  s.phaseDuration,
		ActuatorErrors: s.writeErrors,
	}
}

// Durations returns the configured durations.
func (s *State) Durations() Durations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durations
}

// SetDurations replaces both durations. The current phase picks up its
// new duration immediately; it does not wait for the next phase. If the
// phase is already past the new duration it ends on the next step.
func (s *State) SetDurations(d Durations) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.durations = d
	s.phaseDuration = d.For(s.phase)
	if s.elapsed > s.phaseDuration {
		s.elapsed = s.phaseDuration
	}
	s.mu.Unlock()
	s.nudge()
	return nil
}

// RequestReset zeroes the cycle counter and asks the loop to restart the
// current phase timer. It does not wait for the loop.
func (s *State) RequestReset() {
	s.mu.Lock()
	s.cycles = 0
	s.resetPending = true
	s.mu.Unlock()
	s.nudge()
}

func (s *State) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
