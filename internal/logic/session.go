package logic

// Reaction is the side effect the lifecycle handler asks for after a stack event.
type Reaction uint8

const (
	ReactNone Reaction = iota
	// ReactAdvertise re-enters discoverable mode.
	ReactAdvertise
	// ReactLinkUp turns the advertising indicator off.
	ReactLinkUp
)

// Session holds the per-link flags owned by the lifecycle handler.
// It is written only from the stack callback, which runs inside the event pump.
type Session struct {
	measurementEnabled bool
	peer               string
	notify             NotifyFlags
}

// MeasurementEnabled reports whether periodic battery measurement is on.
func (s *Session) MeasurementEnabled() bool {
	return s.measurementEnabled
}

// Peer returns the address of the connected peer, if any.
func (s *Session) Peer() string {
	return s.peer
}

// Notify returns the last measurement CCCD value written by the peer.
func (s *Session) Notify() NotifyFlags {
	return s.notify
}

// Handle applies a stack event. link is the link state after the event was
// processed by the stack.
func (s *Session) Handle(ev StackEvent, link LinkState) Reaction {
	switch ev.Type {
	case EventStackReady, EventLinkLost:
		s.measurementEnabled = false
		s.peer = ""
		s.notify = 0
		return ReactAdvertise

	case EventLinkEstablished:
		s.peer = ev.Peer
		return ReactLinkUp

	case EventBatteryNotifyEnabled:
		// A late CCCD write can still be queued behind a disconnect.
		if link == LinkConnected {
			s.measurementEnabled = true
		}
		return ReactNone

	case EventBatteryNotifyDisabled:
		s.measurementEnabled = false
		return ReactNone

	case EventMeasurementCCCD:
		s.notify = ev.Flags
		return ReactNone
	}
	return ReactNone
}
