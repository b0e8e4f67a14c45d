// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sweeney/pump-controller/internal/logic"
)

// Topic is the MQTT topic for pump phase events.
const Topic = "pump/controller/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "pump/controller/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pump event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Pump PumpPayload `json:"pump"`
}

// PumpPayload contains the pump event details. Durations are seconds.
type PumpPayload struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Phase     string  `json:"phase"`
	Cycles    int     `json:"cycles"`
	Pulse     float64 `json:"pulse"`
	Pause     float64 `json:"pause"`
}

// NewID returns a ULID for a message emitted at t. IDs sort by time.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// FormatPayload creates the JSON payload for a pump event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Pump: PumpPayload{
			ID:        NewID(event.Timestamp),
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Phase:     string(event.Phase),
			Cycles:    event.Cycles,
			Pulse:     event.Durations.Pulse.Seconds(),
			Pause:     event.Durations.Pause.Seconds(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NoopPublisher discards everything. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(logic.Event) error       { return nil }
func (NoopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NoopPublisher) Close() error                    { return nil }
func (NoopPublisher) IsConnected() bool               { return false }
