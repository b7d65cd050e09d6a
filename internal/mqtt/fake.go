package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/bp-sensor/internal/bps"
)

// PublishedRecord is one record seen by FakePublisher.
type PublishedRecord struct {
	Peer   string
	Record bps.Record
}

// PublishedBattery is one battery level seen by FakePublisher.
type PublishedBattery struct {
	Peer  string
	Level uint8
	At    time.Time
}

// FakePublisher records published messages for test assertions.
// Safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Records contains all measurements that were published.
	Records []PublishedRecord

	// Batteries contains all battery levels that were published.
	Batteries []PublishedBattery

	// Payloads contains the JSON payloads published on TopicMeasurements.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishRecord and PublishBattery.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Backlog and Overwritten are returned by Queued and Dropped.
	Backlog     int
	Overwritten uint64
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishRecord records the measurement.
func (f *FakePublisher) PublishRecord(peer string, r bps.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatRecord(peer, r)
	if err != nil {
		return err
	}
	f.Records = append(f.Records, PublishedRecord{Peer: peer, Record: r})
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishBattery records the battery level.
func (f *FakePublisher) PublishBattery(peer string, level uint8, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatBattery(peer, level, at)
	if err != nil {
		return err
	}
	f.Batteries = append(f.Batteries, PublishedBattery{Peer: peer, Level: level, At: at})
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Queued returns Backlog.
func (f *FakePublisher) Queued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Backlog
}

// Dropped returns Overwritten.
func (f *FakePublisher) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Overwritten
}

// RecordCount returns how many measurements were published.
func (f *FakePublisher) RecordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Records)
}

// SystemEventNames returns the Event field of every published system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records = nil
	f.Batteries = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
	f.Backlog = 0
	f.Overwritten = 0
}
