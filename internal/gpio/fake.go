package gpio

import "sync"

// FakeWriter is a test double that records every level written.
// Safe for concurrent use: the control loop writes while tests read.
type FakeWriter struct {
	mu     sync.Mutex
	levels []Level
	closed bool

	// WriteError, if set, will be returned by Write.
	// The level is still recorded.
	WriteError error
}

// NewFakeWriter creates an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Write records the level.
func (f *FakeWriter) Write(level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	return f.WriteError
}

// SetWriteError changes the error returned by Write.
func (f *FakeWriter) SetWriteError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}

// Levels returns a copy of all recorded levels in write order.
func (f *FakeWriter) Levels() []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Level, len(f.levels))
	copy(out, f.levels)
	return out
}

// Last returns the most recent level and whether anything was written.
func (f *FakeWriter) Last() (Level, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return Low, false
	}
	return f.levels[len(f.levels)-1], true
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeWriter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded levels.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	f.levels = nil
	f.closed = false
	f.WriteError = nil
	f.mu.Unlock()
}
