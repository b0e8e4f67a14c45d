// Package settings persists the pulse and pause durations as a flat
// key to real-number mapping.
package settings

import (
	"math"

	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/logger"
	"github.com/sweeney/pump-controller/internal/logic"
)

// Keys stored by the controller.
const (
	KeyPulse = "pulse"
	KeyPause = "pause"
)

// Defaults in seconds, used when a key has never been saved.
const (
	DefaultPulse = 79.0
	DefaultPause = 359.0
)

// Setting is one stored key/value pair.
type Setting struct {
	Key   string  `json:"key" yaml:"key"`
	Value float64 `json:"value" yaml:"value"`
}

// Store is durable key to number storage.
type Store interface {
	// Load returns the stored value for key, or def if the key is absent.
	// An error is returned only when the store could not be read; def is
	// returned alongside it so callers can fall back.
	Load(key string, def float64) (float64, error)

	// Save inserts or replaces the value for key.
	Save(key string, value float64) error

	// All returns every stored setting ordered by key.
	All() ([]Setting, error)

	Close() error
}

// ValidKey reports whether key is one the controller uses.
func ValidKey(key string) bool {
	return key == KeyPulse || key == KeyPause
}

// Lookup returns the stored value for key and whether it exists.
func Lookup(s Store, key string) (float64, bool, error) {
	all, err := s.All()
	if err != nil {
		return 0, false, err
	}
	for _, st := range all {
		if st.Key == key {
			return st.Value, true, nil
		}
	}
	return 0, false, nil
}

// SaveChecked validates key and value before saving. Values must be
// finite and strictly positive.
func SaveChecked(s Store, key string, value float64) error {
	errFactory := errors.New()
	if !ValidKey(key) {
		return errFactory.WithData(errors.ErrInvalidArgument, key).WithMessage("unknown setting")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 || value > logic.MaxSeconds {
		return errFactory.WithData(errors.ErrInvalidDuration, value)
	}
	return s.Save(key, value)
}

// LoadDurations reads pulse and pause, falling back to the defaults for
// absent keys and for read failures. Read failures are logged.
func LoadDurations(s Store, defPulse, defPause float64) (pulse, pause float64) {
	pulse = loadOne(s, KeyPulse, defPulse)
	pause = loadOne(s, KeyPause, defPause)
	return pulse, pause
}

func loadOne(s Store, key string, def float64) float64 {
	v, err := s.Load(key, def)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Float64("default", def).Msg("Failed to load setting, using default")
		return def
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > logic.MaxSeconds {
		logger.Warn().Str("key", key).Float64("value", v).Float64("default", def).Msg("Stored setting out of range, using default")
		return def
	}
	return v
}
