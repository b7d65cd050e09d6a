// Package status provides a thread-safe status tracker for the bp-sensor daemon.
// It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/bp-sensor/internal/bps"
	"github.com/sweeney/bp-sensor/internal/core"
)

// Config contains daemon configuration for display.
type Config struct {
	Radio         string
	TimerPeriodMs int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	DebugPort     string
	Database      string
}

// Debug describes the debug output channel.
type Debug struct {
	Buffered int
	FIFO     int
	Dropped  uint64
	Sent     uint64
}

// Reading is the last value sent to the peer.
type Reading struct {
	Peer   string
	Record bps.Record
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Loop          core.Snapshot
	LastReading   *Reading
	Battery       *uint8
	Debug         Debug
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTQueued    int
	MQTTDropped   uint64
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the control loop state.
// Called from the run loop after every iteration.
func (t *Tracker) Update(loop core.Snapshot) {
	t.mu.Lock()
	t.snap.Loop = loop
	t.mu.Unlock()
}

// SetDebug sets the debug channel statistics.
func (t *Tracker) SetDebug(d Debug) {
	t.mu.Lock()
	t.snap.Debug = d
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTQueue sets the MQTT offline queue depth and overwrite count.
func (t *Tracker) SetMQTTQueue(queued int, dropped uint64) {
	t.mu.Lock()
	t.snap.MQTTQueued = queued
	t.snap.MQTTDropped = dropped
	t.mu.Unlock()
}

// OnRecord remembers the last measurement sent.
func (t *Tracker) OnRecord(peer string, r bps.Record) {
	t.mu.Lock()
	t.snap.LastReading = &Reading{Peer: peer, Record: r}
	t.mu.Unlock()
}

// OnBattery remembers the last battery level sent.
func (t *Tracker) OnBattery(peer string, level uint8) {
	t.mu.Lock()
	t.snap.Battery = &level
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
