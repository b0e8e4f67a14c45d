package logger

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pump-controller/internal/errors"
)

func TestErrorWithCodeFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel(DebugLevel)
	t.Cleanup(func() { SetLogLevel(InfoLevel) })

	err := errors.New().Wrap(errors.ErrActuatorWrite, stderrors.New("line busy"))
	ErrorWithCode(err).Str("phase", "ON").Msg("relay write failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "actuator_write_failed", entry["error_code"])
	assert.Equal(t, "line busy", entry["error"])
	assert.Equal(t, "ON", entry["phase"])
	assert.Equal(t, "relay write failed", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel(WarnLevel)
	t.Cleanup(func() { SetLogLevel(InfoLevel) })

	Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
