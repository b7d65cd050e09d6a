// Package logic contains the pure scheduling rules of the sensor control loop.
// This package has NO external dependencies (no radio, GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// LinkState is the radio connection phase as reported by the stack.
type LinkState uint8

const (
	LinkInitializing LinkState = iota
	LinkStopped
	LinkAdvertising
	LinkConnected
	LinkDisconnecting
)

func (s LinkState) String() string {
	switch s {
	case LinkInitializing:
		return "INITIALIZING"
	case LinkStopped:
		return "STOPPED"
	case LinkAdvertising:
		return "ADVERTISING"
	case LinkConnected:
		return "CONNECTED"
	case LinkDisconnecting:
		return "DISCONNECTING"
	}
	return fmt.Sprintf("LINK(%d)", uint8(s))
}

// SleepDepth is an ordered power-saving level. Larger is deeper.
type SleepDepth uint8

const (
	DepthActive SleepDepth = iota
	DepthIdle
	DepthDeep
	DepthHibernate
)

func (d SleepDepth) String() string {
	switch d {
	case DepthActive:
		return "ACTIVE"
	case DepthIdle:
		return "IDLE"
	case DepthDeep:
		return "DEEP"
	case DepthHibernate:
		return "HIBERNATE"
	}
	return fmt.Sprintf("DEPTH(%d)", uint8(d))
}

// RadioSubstate is the low-level link-layer state of the radio subsystem.
type RadioSubstate uint8

const (
	SubstateUnknown RadioSubstate = iota
	SubstateActive
	SubstateEventClose // radio is closing a connection/advertising event
	SubstateSleep
	SubstateClockGatedReady // high-frequency clock on, radio idle
	SubstateClockStable
	SubstateDeepRetention
	SubstateHibernate
)

func (s RadioSubstate) String() string {
	switch s {
	case SubstateUnknown:
		return "UNKNOWN"
	case SubstateActive:
		return "ACTIVE"
	case SubstateEventClose:
		return "EVENT_CLOSE"
	case SubstateSleep:
		return "SLEEP"
	case SubstateClockGatedReady:
		return "ECO_ON"
	case SubstateClockStable:
		return "ECO_STABLE"
	case SubstateDeepRetention:
		return "DEEPSLEEP"
	case SubstateHibernate:
		return "HIBERNATE"
	}
	return fmt.Sprintf("SUBSTATE(%d)", uint8(s))
}

// NotifyFlags records which transmit obligations a peer has enabled on the
// measurement characteristic.
type NotifyFlags uint8

const (
	FlagNotify NotifyFlags = 1 << iota
	FlagIndicate
)

// Any reports whether notifications or indications are enabled.
func (f NotifyFlags) Any() bool {
	return f&(FlagNotify|FlagIndicate) != 0
}

func (f NotifyFlags) String() string {
	switch f & (FlagNotify | FlagIndicate) {
	case FlagNotify:
		return "NTF"
	case FlagIndicate:
		return "IND"
	case FlagNotify | FlagIndicate:
		return "NTF|IND"
	}
	return "NONE"
}

// EventType tags a stack notification.
type EventType string

const (
	EventStackReady            EventType = "STACK_READY"
	EventLinkEstablished       EventType = "LINK_ESTABLISHED"
	EventLinkLost              EventType = "LINK_LOST"
	EventBatteryNotifyEnabled  EventType = "BATTERY_NOTIFY_ENABLED"
	EventBatteryNotifyDisabled EventType = "BATTERY_NOTIFY_DISABLED"
	EventMeasurementCCCD       EventType = "MEASUREMENT_CCCD"
	EventIndicationConfirmed   EventType = "INDICATION_CONFIRMED"
	EventOther                 EventType = "OTHER"
)

// StackEvent is one notification delivered by the radio stack.
type StackEvent struct {
	Type  EventType
	Peer  string      // peer address, if any
	Flags NotifyFlags // MEASUREMENT_CCCD only

	// Restored marks a client configuration replayed from a stored bond
	// rather than written by the peer.
	Restored bool
}

// Counts tracks what the control loop has done since startup.
type Counts struct {
	Iterations      uint64
	SleepDeep       uint64
	SleepIdle       uint64
	SleepDeclined   uint64
	TickBatches     uint64
	TicksConsumed   uint64
	Measurements    uint64
	Reports         uint64
	PersistAttempts uint64
	PersistFailures uint64
	StackEvents     uint64
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
