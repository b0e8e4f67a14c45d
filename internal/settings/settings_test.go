package settings

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pump-controller/internal/errors"
	"github.com/sweeney/pump-controller/internal/logic"
)

func TestLoadDurationsDefaults(t *testing.T) {
	pulse, pause := LoadDurations(NewMemoryStore(), DefaultPulse, DefaultPause)
	assert.Equal(t, 79.0, pulse)
	assert.Equal(t, 359.0, pause)
}

func TestLoadDurationsStored(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.Save(KeyPulse, 5))
	require.NoError(t, m.Save(KeyPause, 10))

	pulse, pause := LoadDurations(m, DefaultPulse, DefaultPause)
	assert.Equal(t, 5.0, pulse)
	assert.Equal(t, 10.0, pause)
}

func TestLoadDurationsReadFailureFallsBack(t *testing.T) {
	m := NewMemoryStore()
	m.Save(KeyPulse, 5)
	m.LoadError = stderrors.New("io error")

	pulse, pause := LoadDurations(m, DefaultPulse, DefaultPause)
	assert.Equal(t, DefaultPulse, pulse)
	assert.Equal(t, DefaultPause, pause)
}

func TestLoadDurationsRejectsNonPositive(t *testing.T) {
	m := NewMemoryStore()
	m.Save(KeyPulse, 0)
	m.Save(KeyPause, -4)

	pulse, pause := LoadDurations(m, DefaultPulse, DefaultPause)
	assert.Equal(t, DefaultPulse, pulse)
	assert.Equal(t, DefaultPause, pause)
}

func TestLoadDurationsRejectsOverflow(t *testing.T) {
	m := NewMemoryStore()
	m.Save(KeyPulse, 1e12)

	pulse, _ := LoadDurations(m, DefaultPulse, DefaultPause)
	assert.Equal(t, DefaultPulse, pulse)
}

func TestDurationBoundMatchesController(t *testing.T) {
	m := NewMemoryStore()
	over := logic.MaxSeconds * 2

	err := SaveChecked(m, KeyPulse, over)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidDuration))

	m.Save(KeyPause, over)
	_, pause := LoadDurations(m, DefaultPulse, DefaultPause)
	assert.Equal(t, DefaultPause, pause)

	require.NoError(t, SaveChecked(m, KeyPause, logic.MaxSeconds/2))
}

func TestSaveChecked(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, SaveChecked(m, KeyPause, 12))
	v, _ := m.Load(KeyPause, 0)
	assert.Equal(t, 12.0, v)

	err := SaveChecked(m, "speed", 1)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := SaveChecked(m, KeyPulse, bad)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidDuration), "value %v", bad)
	}
	_, ok, _ := Lookup(m, KeyPulse)
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	m := NewMemoryStore()
	m.Save(KeyPulse, 9)

	v, ok, err := Lookup(m, KeyPulse)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9.0, v)

	_, ok, err = Lookup(m, KeyPause)
	require.NoError(t, err)
	assert.False(t, ok)
}
