// Package status is the read/write boundary used by the HTTP layer and
// the MQTT heartbeat. It snapshots the controller state together with
// daemon metadata and forwards configuration changes and resets.
package status

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/logger"
	"github.com/sweeney/pump-controller/internal/logic"
	"github.com/sweeney/pump-controller/internal/settings"
)

// NetworkInfo contains network state reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Pin         int
	ActiveLow   bool
	Simulated   bool
	DBPath      string // empty = in-memory settings
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	logic.Snapshot
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker wraps the shared controller state and holds daemon metadata
// behind its own RWMutex.
type Tracker struct {
	state *logic.State
	store settings.Store

	// saveMu orders apply and persist so the last pair applied is the
	// last pair saved. The state lock is released before any Save.
	saveMu sync.Mutex

	mu   sync.RWMutex
	meta Snapshot
}

// NewTracker creates a Tracker. store may be nil, in which case duration
// changes are kept in memory only.
func NewTracker(startTime time.Time, cfg Config, state *logic.State, store settings.Store) *Tracker {
	return &Tracker{
		state: state,
		store: store,
		meta: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.meta.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.meta.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The controller fields come from a single lock acquisition on the
// shared state, so phase, elapsed and duration always agree.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.meta
	t.mu.RUnlock()
	s.Snapshot = t.state.Snapshot()
	s.Now = time.Now()
	return s
}

// SetDurations validates and applies new pulse and pause lengths in
// seconds, then persists them. Invalid input leaves the state unchanged
// and returns an ErrInvalidDuration error. A persistence failure is
// logged and returned as ErrStorageAccess; the new durations stay in
// effect regardless.
func (t *Tracker) SetDurations(pulse, pause float64) error {
	if err := checkSeconds("pulse", pulse); err != nil {
		return err
	}
	if err := checkSeconds("pause", pause); err != nil {
		return err
	}

	d := logic.Durations{Pulse: logic.Seconds(pulse), Pause: logic.Seconds(pause)}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if err := t.state.SetDurations(d); err != nil {
		return err
	}
	logger.Info().Float64("pulse", pulse).Float64("pause", pause).Msg("Durations updated")

	if t.store == nil {
		return nil
	}
	// Saved outside the state lock.
	for _, kv := range []settings.Setting{{Key: settings.KeyPulse, Value: pulse}, {Key: settings.KeyPause, Value: pause}} {
		if err := t.store.Save(kv.Key, kv.Value); err != nil {
			logger.Error().Err(err).Str("key", kv.Key).Msg("Failed to persist setting")
			return errors.New().Wrap(errors.ErrStorageAccess, err)
		}
	}
	return nil
}

// ParseDurations parses form values for pulse and pause.
// Missing or non-numeric values are ErrInvalidDuration errors.
func ParseDurations(pulse, pause string) (float64, float64, error) {
	p, err := parseSeconds("pulse", pulse)
	if err != nil {
		return 0, 0, err
	}
	z, err := parseSeconds("pause", pause)
	if err != nil {
		return 0, 0, err
	}
	return p, z, nil
}

// RequestReset zeroes the cycle counter and restarts the current phase
// timer on the next controller tick.
func (t *Tracker) RequestReset() {
	t.state.RequestReset()
	logger.Info().Msg("Reset requested")
}

func parseSeconds(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(field, nil, "missing value")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalid(field, raw, "not a number")
	}
	return v, nil
}

func checkSeconds(field string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return invalid(field, v, "must be finite")
	case v <= 0:
		return invalid(field, v, "must be greater than zero")
	case v > logic.MaxSeconds:
		return invalid(field, v, "too large")
	}
	return nil
}

func invalid(field string, value any, reason string) error {
	return errors.New().WithData(errors.ErrInvalidDuration, value).WithMessage(field + " " + reason)
}
