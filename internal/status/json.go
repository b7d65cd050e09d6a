package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Link          LinkJSON     `json:"link"`
	Power         PowerJSON    `json:"power"`
	LastReading   *ReadingJSON `json:"last_reading,omitempty"`
	Battery       *uint8       `json:"battery,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Debug         DebugJSON    `json:"debug"`
	Counts        CountsJSON   `json:"loop_counts"`
	Config        ConfigJSON   `json:"config"`
}

// LinkJSON is the radio link state.
type LinkJSON struct {
	State              string `json:"state"`
	Peer               string `json:"peer,omitempty"`
	Notify             string `json:"notify"`
	MeasurementEnabled bool   `json:"measurement_enabled"`
	PendingWrites      uint32 `json:"pending_writes"`
	StartError         string `json:"start_error,omitempty"`
	PersistError       string `json:"persist_error,omitempty"`
}

// PowerJSON is the sleep policy state.
type PowerJSON struct {
	LastSleep    string `json:"last_sleep"`
	TicksPending uint32 `json:"ticks_pending"`
}

// ReadingJSON is the last measurement sent.
type ReadingJSON struct {
	Peer      string  `json:"peer"`
	Timestamp string  `json:"timestamp"`
	Systolic  float32 `json:"systolic"`
	Diastolic float32 `json:"diastolic"`
	PulseRate float32 `json:"pulse_rate"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Queued    int    `json:"queued"`
	Dropped   uint64 `json:"dropped"`
}

// DebugJSON reports the debug output channel.
type DebugJSON struct {
	Buffered int    `json:"buffered"`
	FIFO     int    `json:"fifo"`
	Dropped  uint64 `json:"dropped"`
	Sent     uint64 `json:"sent"`
}

// CountsJSON is the JSON representation of loop counts.
type CountsJSON struct {
	Iterations      uint64 `json:"iterations"`
	SleepDeep       uint64 `json:"sleep_deep"`
	SleepIdle       uint64 `json:"sleep_idle"`
	SleepDeclined   uint64 `json:"sleep_declined"`
	TickBatches     uint64 `json:"tick_batches"`
	TicksConsumed   uint64 `json:"ticks_consumed"`
	Measurements    uint64 `json:"measurements"`
	Reports         uint64 `json:"reports"`
	PersistAttempts uint64 `json:"persist_attempts"`
	PersistFailures uint64 `json:"persist_failures"`
	StackEvents     uint64 `json:"stack_events"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Radio         string `json:"radio"`
	TimerPeriodMs int64  `json:"timer_period_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	DebugPort     string `json:"debug_port,omitempty"`
	Database      string `json:"database,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func buildInner(snap Snapshot) StatusInner {
	loop := snap.Loop
	c := loop.Counts

	inner := StatusInner{
		Link: LinkJSON{
			State:              loop.Link.String(),
			Peer:               loop.Peer,
			Notify:             loop.Notify.String(),
			MeasurementEnabled: loop.MeasurementEnabled,
			PendingWrites:      loop.PendingWrites,
			StartError:         errString(loop.StartErr),
			PersistError:       errString(loop.LastPersistErr),
		},
		Power: PowerJSON{
			LastSleep:    loop.LastSleep.String(),
			TicksPending: loop.TicksPending,
		},
		Battery:       snap.Battery,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Queued:    snap.MQTTQueued,
			Dropped:   snap.MQTTDropped,
		},
		Debug: DebugJSON{
			Buffered: snap.Debug.Buffered,
			FIFO:     snap.Debug.FIFO,
			Dropped:  snap.Debug.Dropped,
			Sent:     snap.Debug.Sent,
		},
		Counts: CountsJSON{
			Iterations:      c.Iterations,
			SleepDeep:       c.SleepDeep,
			SleepIdle:       c.SleepIdle,
			SleepDeclined:   c.SleepDeclined,
			TickBatches:     c.TickBatches,
			TicksConsumed:   c.TicksConsumed,
			Measurements:    c.Measurements,
			Reports:         c.Reports,
			PersistAttempts: c.PersistAttempts,
			PersistFailures: c.PersistFailures,
			StackEvents:     c.StackEvents,
		},
		Config: ConfigJSON{
			Radio:         snap.Config.Radio,
			TimerPeriodMs: snap.Config.TimerPeriodMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			DebugPort:     snap.Config.DebugPort,
			Database:      snap.Config.Database,
		},
	}

	inner.LastReading = readingJSON(snap.LastReading)
	return inner
}

func readingJSON(r *Reading) *ReadingJSON {
	if r == nil {
		return nil
	}
	return &ReadingJSON{
		Peer:      r.Peer,
		Timestamp: r.Record.Timestamp.UTC().Format(time.RFC3339),
		Systolic:  r.Record.Systolic,
		Diastolic: r.Record.Diastolic,
		PulseRate: r.Record.PulseRate,
	}
}

// ReadingResponse is the body of the last-reading endpoint.
type ReadingResponse struct {
	Reading *ReadingJSON `json:"reading"`
	Battery *uint8       `json:"battery,omitempty"`
}

// FormatReading returns the last reading as JSON, or nil before the first.
func FormatReading(snap Snapshot) []byte {
	if snap.LastReading == nil {
		return nil
	}
	data, _ := json.Marshal(ReadingResponse{
		Reading: readingJSON(snap.LastReading),
		Battery: snap.Battery,
	})
	return data
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
