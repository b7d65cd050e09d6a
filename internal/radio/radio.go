// Package radio provides the BLE protocol-stack collaborator of the control
// loop. The loop treats the stack as a black box: it queries state, negotiates
// sleep, pumps events and asks for characteristic updates.
//
// Stack notifications are queued when they happen (possibly on another
// goroutine) and dispatched synchronously to the registered Handler from
// PumpEvents, so handlers always run in loop context.
package radio

import (
	"errors"

	"github.com/sweeney/bp-sensor/internal/bps"
	"github.com/sweeney/bp-sensor/internal/logic"
)

// Handler receives stack notifications. It must not block.
type Handler func(logic.StackEvent)

// Stack is the capability set the control loop consumes.
type Stack interface {
	// Start brings the stack up and registers h. Notifications begin with
	// STACK_READY on a later PumpEvents.
	Start(h Handler) error

	// StartAdvertising re-enters discoverable mode.
	StartAdvertising() error

	LinkState() logic.LinkState

	// ProposeSleepMode returns the deepest mode the stack allows, never
	// deeper than requested.
	ProposeSleepMode(requested logic.SleepDepth) logic.SleepDepth

	RadioSubstate() logic.RadioSubstate

	// PumpEvents drains and dispatches all queued notifications, including
	// ones queued while dispatching. It returns once the queue is empty.
	PumpEvents()

	// TriggerMeasurementUpdate measures the battery and notifies the level.
	TriggerMeasurementUpdate()

	// TriggerSimulatedReport simulates one blood pressure measurement and
	// sends it to the peer.
	TriggerSimulatedReport()

	// NotifyFlags returns the pending transmit obligations on the
	// measurement characteristic.
	NotifyFlags() logic.NotifyFlags

	// DeferredWriteCount is nonzero while bonding data awaits persistence.
	DeferredWriteCount() uint32

	// PersistDeferredWrites stores pending bonding data. On failure the
	// count stays nonzero.
	PersistDeferredWrites() error
}

var (
	_ Stack = (*SimStack)(nil)
	_ Stack = (*BlueZStack)(nil)
	_ Stack = (*FakeStack)(nil)
)

// Observer is told about every value the stack sends to the peer.
type Observer interface {
	OnRecord(peer string, r bps.Record)
	OnBattery(peer string, level uint8)
}

// ErrNotSupported is returned by stacks unavailable on this platform.
var ErrNotSupported = errors.New("radio: not supported on this platform")

// ErrFlashBusy is returned when persistence could not run this time.
var ErrFlashBusy = errors.New("radio: flash busy")

// nopObserver discards values.
type nopObserver struct{}

func (nopObserver) OnRecord(string, bps.Record) {}
func (nopObserver) OnBattery(string, uint8)     {}

// Observers fans values out to several observers in order.
type Observers []Observer

func (o Observers) OnRecord(peer string, r bps.Record) {
	for _, obs := range o {
		obs.OnRecord(peer, r)
	}
}

func (o Observers) OnBattery(peer string, level uint8) {
	for _, obs := range o {
		obs.OnBattery(peer, level)
	}
}
