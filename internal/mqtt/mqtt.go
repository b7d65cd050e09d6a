// Package mqtt mirrors what the sensor sends over the air, plus lifecycle
// events, to an MQTT broker.
package mqtt

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/bp-sensor/internal/bps"
)

// TopicMeasurements is the MQTT topic for blood pressure records and battery levels.
const TopicMeasurements = "health/bp-sensor/measurements"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "health/bp-sensor/system"

// Publisher publishes sensor output to MQTT.
type Publisher interface {
	// PublishRecord sends a measurement delivered to peer.
	// Returns error if publishing fails (should not crash the process).
	PublishRecord(peer string, r bps.Record) error

	// PublishBattery sends a battery level notification.
	PublishBattery(peer string, level uint8, at time.Time) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// QueueStatus reports messages held back while the broker is unreachable.
type QueueStatus interface {
	// Queued returns how many messages are waiting for the broker.
	Queued() int
	// Dropped returns how many queued messages were overwritten since start.
	Dropped() uint64
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// MeasurementPayload is the message published for each record.
type MeasurementPayload struct {
	Measurement Measurement `json:"measurement"`
}

// Measurement contains one blood pressure record.
type Measurement struct {
	Timestamp    string   `json:"timestamp"`
	Peer         string   `json:"peer"`
	Unit         string   `json:"unit"`
	Systolic     float64  `json:"systolic"`
	Diastolic    float64  `json:"diastolic"`
	MeanArterial float64  `json:"mean_arterial"`
	PulseRate    float64  `json:"pulse_rate"`
	UserID       uint8    `json:"user_id"`
	Status       []string `json:"status,omitempty"`
	Raw          string   `json:"raw"` // characteristic value as sent, hex
}

// BatteryPayload is the message published for each battery notification.
type BatteryPayload struct {
	Battery Battery `json:"battery"`
}

// Battery contains one battery level reading.
type Battery struct {
	Timestamp string `json:"timestamp"`
	Peer      string `json:"peer"`
	Level     uint8  `json:"level"`
}

// StatusNames returns the names of the set measurement status bits.
func StatusNames(status uint16) []string {
	var names []string
	if status&bps.StatusBodyMovement != 0 {
		names = append(names, "BODY_MOVEMENT")
	}
	if status&bps.StatusCuffLoose != 0 {
		names = append(names, "CUFF_LOOSE")
	}
	if status&bps.StatusIrregularPulse != 0 {
		names = append(names, "IRREGULAR_PULSE")
	}
	return names
}

// FormatRecord creates the JSON payload for a measurement.
func FormatRecord(peer string, r bps.Record) ([]byte, error) {
	payload := MeasurementPayload{
		Measurement: Measurement{
			Timestamp:    r.Timestamp.UTC().Format(time.RFC3339),
			Peer:         peer,
			Unit:         "mmHg",
			Systolic:     round1(r.Systolic),
			Diastolic:    round1(r.Diastolic),
			MeanArterial: round1(r.MeanArterial),
			PulseRate:    round1(r.PulseRate),
			UserID:       r.UserID,
			Status:       StatusNames(r.Status),
			Raw:          hex.EncodeToString(r.Encode()),
		},
	}
	return json.Marshal(payload)
}

// FormatBattery creates the JSON payload for a battery level.
func FormatBattery(peer string, level uint8, at time.Time) ([]byte, error) {
	payload := BatteryPayload{
		Battery: Battery{
			Timestamp: at.UTC().Format(time.RFC3339),
			Peer:      peer,
			Level:     level,
		},
	}
	return json.Marshal(payload)
}

// round1 keeps one decimal place so float32 noise stays out of the JSON.
func round1(v float32) float64 {
	return math.Round(float64(v)*10) / 10
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
