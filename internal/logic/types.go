// Package logic contains the pump phase state machine.
// Hardware is reached only through gpio.Writer and time is always
// injectable via time.Time parameters, so the machine is testable
// without a relay or real sleeps.
package logic

import (
	"math"
	"time"

	"github.com/sweeney/pump-controller/internal/errors"
)

// DefaultPoll is the control loop polling interval. It also bounds how
// long a reset or configuration change waits to be observed, and is the
// minimum effective phase duration.
const DefaultPoll = 100 * time.Millisecond

// MaxSeconds is the largest duration, in seconds, representable as a
// time.Duration.
const MaxSeconds = float64(math.MaxInt64) / float64(time.Second)

// Phase is one of the two alternating operating states.
type Phase string

const (
	PhaseOn  Phase = "ON"
	PhaseOff Phase = "OFF"
)

// Label returns the status label shown on the control page.
func (p Phase) Label() string {
	if p == PhaseOn {
		return "Aan"
	}
	return "Uit"
}

// Other returns the phase that follows p.
func (p Phase) Other() Phase {
	if p == PhaseOn {
		return PhaseOff
	}
	return PhaseOn
}

// Durations holds the configured pulse (ON) and pause (OFF) lengths.
type Durations struct {
	Pulse time.Duration
	Pause time.Duration
}

// For returns the configured duration of phase p.
func (d Durations) For(p Phase) time.Duration {
	if p == PhaseOn {
		return d.Pulse
	}
	return d.Pause
}

// Validate checks both durations are strictly positive.
func (d Durations) Validate() error {
	if d.Pulse <= 0 || d.Pause <= 0 {
		return errors.New().WithData(errors.ErrInvalidDuration, struct {
			Pulse string
			Pause string
		}{
			Pulse: d.Pulse.String(),
			Pause: d.Pause.String(),
		})
	}
	return nil
}

// Seconds converts fractional seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// EventType identifies a published controller event.
type EventType string

const (
	EventPumpOn  EventType = "PUMP_ON"
	EventPumpOff EventType = "PUMP_OFF"
	EventReset   EventType = "RESET"
)

// Event describes a phase entry or a consumed reset.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Phase     Phase
	Cycles    int
	Durations Durations
}

func eventFor(p Phase) EventType {
	if p == PhaseOn {
		return EventPumpOn
	}
	return EventPumpOff
}
