// Package gpio drives the relay output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The log writer stands in when no hardware is present, and the fake
// records writes for tests.
package gpio

// Level is a raw output level on the relay line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Writer sets the relay output to one of two levels.
type Writer interface {
	// Write drives the output line. Errors are reported but the caller
	// is expected to carry on; the next phase write may succeed.
	Write(level Level) error

	// Close releases GPIO resources.
	Close() error
}

// Defaults (BCM numbering)
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17 // relay module IN1
)
