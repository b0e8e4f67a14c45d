package gpio

import "github.com/sweeney/pump-controller/internal/logger"

// LogWriter logs every level change instead of touching hardware.
// Used when running without a relay board.
type LogWriter struct {
	pin int
}

// NewLogWriter creates a LogWriter for the given pin number.
func NewLogWriter(pin int) *LogWriter {
	logger.Info().Int("pin", pin).Msg("gpio: no hardware, logging relay output only")
	return &LogWriter{pin: pin}
}

// Write logs the level.
func (w *LogWriter) Write(level Level) error {
	logger.Info().Int("pin", w.pin).Stringer("level", level).Msg("gpio: output")
	return nil
}

// Close logs the cleanup.
func (w *LogWriter) Close() error {
	logger.Info().Int("pin", w.pin).Msg("gpio: cleanup")
	return nil
}
