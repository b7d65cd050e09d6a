//go:build !linux

package radio

import (
	"log/slog"
	"time"

	"github.com/sweeney/bp-sensor/internal/logic"
)

// BlueZOptions configures a BlueZStack.
type BlueZOptions struct {
	LocalName   string
	AdvInterval time.Duration
	UserID      uint8
	Observer    Observer
	Wake        func()
	Logger      *slog.Logger
}

// BlueZStack is unavailable off Linux; every call reports ErrNotSupported
// and the link never leaves INITIALIZING.
type BlueZStack struct{}

func NewBlueZStack(opts BlueZOptions) *BlueZStack {
	return &BlueZStack{}
}

func (*BlueZStack) Start(Handler) error                { return ErrNotSupported }
func (*BlueZStack) StartAdvertising() error            { return ErrNotSupported }
func (*BlueZStack) LinkState() logic.LinkState         { return logic.LinkInitializing }
func (*BlueZStack) RadioSubstate() logic.RadioSubstate { return logic.SubstateActive }
func (*BlueZStack) PumpEvents()                        {}
func (*BlueZStack) TriggerMeasurementUpdate()          {}
func (*BlueZStack) TriggerSimulatedReport()            {}
func (*BlueZStack) NotifyFlags() logic.NotifyFlags     { return 0 }
func (*BlueZStack) DeferredWriteCount() uint32         { return 0 }
func (*BlueZStack) PersistDeferredWrites() error       { return ErrNotSupported }
func (*BlueZStack) ProposeSleepMode(logic.SleepDepth) logic.SleepDepth {
	return logic.DepthActive
}
