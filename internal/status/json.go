package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pump-controller/internal/logic"
)

// CompactJSON is the /status document polled by the control page.
// Durations and elapsed time are whole seconds, truncated.
type CompactJSON struct {
	Pulse    int    `json:"pulse"`
	Pause    int    `json:"pause"`
	Cycles   int    `json:"cycles"`
	Status   string `json:"status"`
	Elapsed  int    `json:"elapsed"`
	Duration int    `json:"duration"`
}

// StatusJSON is the top-level JSON envelope for full status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Pump          PumpJSON     `json:"pump"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PumpJSON is the controller part of the status.
type PumpJSON struct {
	Phase          string  `json:"phase"`
	Label          string  `json:"label"`
	Elapsed        float64 `json:"elapsed_seconds"`
	PhaseDuration  float64 `json:"phase_duration_seconds"`
	Pulse          float64 `json:"pulse_seconds"`
	Pause          float64 `json:"pause_seconds"`
	Cycles         int     `json:"cycles"`
	ActuatorErrors int     `json:"actuator_errors"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Pin         int    `json:"pin"`
	ActiveLow   bool   `json:"active_low"`
	Simulated   bool   `json:"simulated"`
	DBPath      string `json:"db_path,omitempty"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

// Compact builds the /status document.
func Compact(snap logic.Snapshot) CompactJSON {
	return CompactJSON{
		Pulse:    int(snap.Durations.Pulse / time.Second),
		Pause:    int(snap.Durations.Pause / time.Second),
		Cycles:   snap.Cycles,
		Status:   snap.Phase.Label(),
		Elapsed:  int(snap.Elapsed / time.Second),
		Duration: int(snap.PhaseDuration / time.Second),
	}
}

// FormatStatus returns the /status document.
func FormatStatus(snap Snapshot) []byte {
	data, _ := json.Marshal(Compact(snap.Snapshot))
	return data
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	return StatusInner{
		Pump: PumpJSON{
			Phase:          phase,
			Label:          snap.Phase.Label(),
			Elapsed:        snap.Elapsed.Seconds(),
			PhaseDuration:  snap.PhaseDuration.Seconds(),
			Pulse:          snap.Durations.Pulse.Seconds(),
			Pause:          snap.Durations.Pause.Seconds(),
			Cycles:         snap.Cycles,
			ActuatorErrors: snap.ActuatorErrors,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Pin:         snap.Config.Pin,
			ActiveLow:   snap.Config.ActiveLow,
			Simulated:   snap.Config.Simulated,
			DBPath:      snap.Config.DBPath,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the full JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
