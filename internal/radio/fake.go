package radio

import (
	"github.com/sweeney/bp-sensor/internal/logic"
)

// FakeStack is a test double with scripted state that records every call.
type FakeStack struct {
	// State is returned by LinkState.
	State logic.LinkState

	// Negotiated, if set, is returned by ProposeSleepMode; otherwise the
	// requested depth is granted.
	Negotiated *logic.SleepDepth

	// Substate is returned by RadioSubstate.
	Substate logic.RadioSubstate

	// Flags is returned by NotifyFlags.
	Flags logic.NotifyFlags

	// PendingWrites is returned by DeferredWriteCount and cleared by a
	// successful PersistDeferredWrites.
	PendingWrites uint32

	// PersistErrors are returned by successive PersistDeferredWrites calls;
	// once exhausted, persistence succeeds.
	PersistErrors []error

	// StartError, if set, is returned by Start.
	StartError error

	// Queued events are dispatched by the next PumpEvents.
	Queued []logic.StackEvent

	// Calls records method names in order.
	Calls []string

	Handler Handler
}

// NewFakeStack creates a FakeStack in the given link state.
func NewFakeStack(state logic.LinkState) *FakeStack {
	return &FakeStack{State: state, Substate: logic.SubstateClockGatedReady}
}

func (f *FakeStack) Start(h Handler) error {
	f.Calls = append(f.Calls, "Start")
	f.Handler = h
	return f.StartError
}

func (f *FakeStack) StartAdvertising() error {
	f.Calls = append(f.Calls, "StartAdvertising")
	f.State = logic.LinkAdvertising
	return nil
}

func (f *FakeStack) LinkState() logic.LinkState {
	return f.State
}

func (f *FakeStack) ProposeSleepMode(requested logic.SleepDepth) logic.SleepDepth {
	f.Calls = append(f.Calls, "ProposeSleepMode")
	if f.Negotiated != nil {
		return *f.Negotiated
	}
	return requested
}

func (f *FakeStack) RadioSubstate() logic.RadioSubstate {
	return f.Substate
}

func (f *FakeStack) PumpEvents() {
	f.Calls = append(f.Calls, "PumpEvents")
	evs := f.Queued
	f.Queued = nil
	for _, ev := range evs {
		if f.Handler != nil {
			f.Handler(ev)
		}
	}
}

func (f *FakeStack) TriggerMeasurementUpdate() {
	f.Calls = append(f.Calls, "TriggerMeasurementUpdate")
}

func (f *FakeStack) TriggerSimulatedReport() {
	f.Calls = append(f.Calls, "TriggerSimulatedReport")
}

func (f *FakeStack) NotifyFlags() logic.NotifyFlags {
	return f.Flags
}

func (f *FakeStack) DeferredWriteCount() uint32 {
	return f.PendingWrites
}

func (f *FakeStack) PersistDeferredWrites() error {
	f.Calls = append(f.Calls, "PersistDeferredWrites")
	if len(f.PersistErrors) > 0 {
		err := f.PersistErrors[0]
		f.PersistErrors = f.PersistErrors[1:]
		if err != nil {
			return err
		}
	}
	f.PendingWrites = 0
	return nil
}

// Count returns how many times the named method was called.
func (f *FakeStack) Count(name string) int {
	n := 0
	for _, c := range f.Calls {
		if c == name {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (f *FakeStack) Reset() {
	f.Calls = nil
}
