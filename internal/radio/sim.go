package radio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/bp-sensor/internal/bps"
	"github.com/sweeney/bp-sensor/internal/logic"
	"github.com/sweeney/bp-sensor/internal/store"
)

// BondStore persists bonding data.
type BondStore interface {
	SaveBond(ctx context.Context, b store.Bond) error
	Bonds(ctx context.Context) ([]store.Bond, error)
}

// ErrNotAdvertising is returned when a simulated peer connects to a sensor
// that is not discoverable.
var ErrNotAdvertising = errors.New("radio: sensor is not advertising")

// persistTimeout bounds a single bond flush.
const persistTimeout = 2 * time.Second

// SimOptions configures a SimStack.
type SimOptions struct {
	Store    BondStore // nil keeps bonds in memory only
	Observer Observer
	Wake     func() // raised whenever a notification is queued
	Now      func() time.Time

	UserID        uint8
	BatteryStepMV int
}

// SimStack is a software BLE peripheral with a scripted peer. Peer-side calls
// (Connect, Subscribe, ...) may come from any goroutine; everything else runs
// in loop context.
type SimStack struct {
	hostRadio

	store    BondStore
	observer Observer
	now      func() time.Time
	sim      *bps.Simulator
	battery  *bps.Battery

	// loop context only
	peer      string
	notify    logic.NotifyFlags
	batteryOn bool
	bonds     map[string]store.Bond

	// Set once the peer writes the configuration itself on this connection;
	// a later replay from the bond must not override it.
	wroteCCCD    bool
	wroteBattery bool

	pendingWrites atomic.Uint32
	injectedFails atomic.Int32
}

// NewSimStack creates a simulated stack.
func NewSimStack(opts SimOptions) *SimStack {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.UserID == 0 {
		opts.UserID = bps.UserUnknown
	}
	s := &SimStack{
		store:    opts.Store,
		observer: opts.Observer,
		now:      opts.Now,
		sim:      bps.NewSimulator(opts.UserID),
		battery:  bps.NewBattery(opts.BatteryStepMV),
		bonds:    make(map[string]store.Bond),
	}
	s.initHost(opts.Wake)
	return s
}

// Start loads known bonds and queues STACK_READY.
func (s *SimStack) Start(h Handler) error {
	s.setHandler(h)

	var loadErr error
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		bonds, err := s.store.Bonds(ctx)
		cancel()
		if err != nil {
			loadErr = fmt.Errorf("load bonds: %w", err)
		}
		for _, b := range bonds {
			s.bonds[b.Peer] = b
		}
	}

	s.post(logic.StackEvent{Type: logic.EventStackReady})
	return loadErr
}

func (s *SimStack) StartAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == logic.LinkConnected {
		return nil
	}
	s.state = logic.LinkAdvertising
	return nil
}

func (s *SimStack) PumpEvents() {
	s.pump(s.apply)
}

func (s *SimStack) apply(ev logic.StackEvent) bool {
	if ev.Restored && !s.replayCurrent(ev) {
		return false
	}

	switch ev.Type {
	case logic.EventStackReady:
		s.setState(logic.LinkStopped)

	case logic.EventLinkEstablished:
		s.setState(logic.LinkConnected)
		s.peer = ev.Peer
		s.notify = 0
		s.batteryOn = false
		s.wroteCCCD = false
		s.wroteBattery = false
		if b, ok := s.bonds[ev.Peer]; ok {
			// Bonded peers get their client configuration back without
			// rewriting it.
			s.restore(b)
			return true
		}
		s.pendingWrites.Add(1)

	case logic.EventLinkLost:
		s.setState(logic.LinkStopped)
		s.peer = ""
		s.notify = 0
		s.batteryOn = false

	case logic.EventMeasurementCCCD:
		if s.LinkState() != logic.LinkConnected {
			return false
		}
		s.notify = ev.Flags
		if !ev.Restored {
			s.wroteCCCD = true
			if b, ok := s.bonds[s.peer]; !ok || b.CCCD != uint8(ev.Flags) {
				s.pendingWrites.Add(1)
			}
		}

	case logic.EventBatteryNotifyEnabled, logic.EventBatteryNotifyDisabled:
		if s.LinkState() != logic.LinkConnected {
			return false
		}
		on := ev.Type == logic.EventBatteryNotifyEnabled
		s.batteryOn = on
		if !ev.Restored {
			s.wroteBattery = true
			if b, ok := s.bonds[s.peer]; !ok || b.Battery != on {
				s.pendingWrites.Add(1)
			}
		}
	}
	return true
}

// replayCurrent reports whether a value replayed from a bond still applies:
// the bonded peer is still connected and has not written that value itself
// since connecting.
func (s *SimStack) replayCurrent(ev logic.StackEvent) bool {
	if ev.Peer != s.peer || s.LinkState() != logic.LinkConnected {
		return false
	}
	switch ev.Type {
	case logic.EventMeasurementCCCD:
		return !s.wroteCCCD
	case logic.EventBatteryNotifyEnabled, logic.EventBatteryNotifyDisabled:
		return !s.wroteBattery
	}
	return true
}

// restore queues the bonded client configuration for the handler. The
// values take effect when the replayed events are pumped.
func (s *SimStack) restore(b store.Bond) {
	var evs []logic.StackEvent
	if flags := logic.NotifyFlags(b.CCCD); flags.Any() {
		evs = append(evs, logic.StackEvent{Type: logic.EventMeasurementCCCD, Peer: b.Peer, Flags: flags, Restored: true})
	}
	if b.Battery {
		evs = append(evs, logic.StackEvent{Type: logic.EventBatteryNotifyEnabled, Peer: b.Peer, Restored: true})
	}
	if len(evs) > 0 {
		s.post(evs...)
	}
}

func (s *SimStack) TriggerMeasurementUpdate() {
	level := s.battery.Measure()
	if s.batteryOn && s.LinkState() == logic.LinkConnected {
		s.observer.OnBattery(s.peer, level)
	}
}

func (s *SimStack) TriggerSimulatedReport() {
	r := s.sim.Next(s.now())
	if s.LinkState() != logic.LinkConnected || !s.notify.Any() {
		return
	}
	s.observer.OnRecord(s.peer, r)
	if s.notify&logic.FlagIndicate != 0 {
		// The peer acknowledges the indication in a later connection event.
		s.post(logic.StackEvent{Type: logic.EventIndicationConfirmed, Peer: s.peer})
	}
}

func (s *SimStack) NotifyFlags() logic.NotifyFlags {
	return s.notify
}

func (s *SimStack) DeferredWriteCount() uint32 {
	return s.pendingWrites.Load()
}

func (s *SimStack) PersistDeferredWrites() error {
	if s.pendingWrites.Load() == 0 {
		return nil
	}
	if s.injectedFails.Load() > 0 {
		s.injectedFails.Add(-1)
		return ErrFlashBusy
	}
	if s.peer == "" {
		s.pendingWrites.Store(0)
		return nil
	}

	b := store.Bond{
		Peer:      s.peer,
		CCCD:      uint8(s.notify),
		Battery:   s.batteryOn,
		UpdatedAt: s.now(),
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.store.SaveBond(ctx, b); err != nil {
			return fmt.Errorf("persist bond: %w", err)
		}
	}
	s.bonds[b.Peer] = b
	s.pendingWrites.Store(0)
	return nil
}

// Records returns how many measurements have been simulated.
func (s *SimStack) Records() uint64 {
	return s.sim.Count()
}

// --- peer side ---

// Connect simulates a central connecting from address.
func (s *SimStack) Connect(address string) error {
	if s.LinkState() != logic.LinkAdvertising {
		return ErrNotAdvertising
	}
	s.post(logic.StackEvent{Type: logic.EventLinkEstablished, Peer: address})
	return nil
}

// Disconnect simulates the link dropping.
func (s *SimStack) Disconnect() {
	if s.LinkState() != logic.LinkConnected {
		return
	}
	s.post(logic.StackEvent{Type: logic.EventLinkLost})
}

// Subscribe simulates the peer writing the measurement CCCD.
func (s *SimStack) Subscribe(flags logic.NotifyFlags) {
	s.post(logic.StackEvent{Type: logic.EventMeasurementCCCD, Flags: flags})
}

// SubscribeBattery simulates the peer writing the battery level CCCD.
func (s *SimStack) SubscribeBattery(on bool) {
	t := logic.EventBatteryNotifyDisabled
	if on {
		t = logic.EventBatteryNotifyEnabled
	}
	s.post(logic.StackEvent{Type: t})
}

// FailPersist makes the next n persistence attempts fail.
func (s *SimStack) FailPersist(n int) {
	s.injectedFails.Add(int32(n))
}
