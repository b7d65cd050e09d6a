//go:build linux

package radio

import (
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/sweeney/bp-sensor/internal/bps"
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

// BlueZStack serves the Blood Pressure and Battery services from the host
// Bluetooth adapter. BlueZ owns bonding storage, so there are never deferred
// writes. BlueZ does not report client configuration writes either: a
// connected central is treated as subscribed to indications and battery
// notifications.
type BlueZStack struct {
	hostRadio

	adapter  *bluetooth.Adapter
	adv      *bluetooth.Advertisement
	opts     BlueZOptions
	sim      *bps.Simulator
	battery  *bps.Battery
	observer Observer
	logger   *slog.Logger

	measurement  bluetooth.Characteristic
	feature      bluetooth.Characteristic
	batteryLevel bluetooth.Characteristic

	// loop context only
	peer      string
	notify    logic.NotifyFlags
	batteryOn bool
}

// NewBlueZStack creates a stack on the default adapter. Nothing touches the
// adapter until Start.
func NewBlueZStack(opts BlueZOptions) *BlueZStack {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.LocalName == "" {
		opts.LocalName = "BP Sensor"
	}
	if opts.UserID == 0 {
		opts.UserID = bps.UserUnknown
	}
	b := &BlueZStack{
		adapter:  bluetooth.DefaultAdapter,
		opts:     opts,
		sim:      bps.NewSimulator(opts.UserID),
		battery:  bps.NewBattery(0),
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	b.initHost(opts.Wake)
	return b
}

func (b *BlueZStack) Start(h Handler) error {
	b.setHandler(h)

	// Must be registered before the adapter starts serving.
	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			peer := device.Address.String()
			b.post(
				logic.StackEvent{Type: logic.EventLinkEstablished, Peer: peer},
				logic.StackEvent{Type: logic.EventMeasurementCCCD, Peer: peer, Flags: logic.FlagIndicate},
				logic.StackEvent{Type: logic.EventBatteryNotifyEnabled, Peer: peer},
			)
			return
		}
		b.post(logic.StackEvent{Type: logic.EventLinkLost})
	})

	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	err := b.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.New16BitUUID(bps.ServiceBloodPressure),
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &b.measurement,
				UUID:   bluetooth.New16BitUUID(bps.CharMeasurement),
				Flags:  bluetooth.CharacteristicIndicatePermission,
			},
			{
				Handle: &b.feature,
				UUID:   bluetooth.New16BitUUID(bps.CharFeature),
				Value:  bps.FeatureValue(bps.DefaultFeature),
				Flags:  bluetooth.CharacteristicReadPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add blood pressure service: %w", err)
	}

	err = b.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.New16BitUUID(bps.ServiceBattery),
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &b.batteryLevel,
				UUID:   bluetooth.New16BitUUID(bps.CharBatteryLevel),
				Value:  []byte{b.battery.Level()},
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add battery service: %w", err)
	}

	b.adv = b.adapter.DefaultAdvertisement()
	err = b.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    b.opts.LocalName,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.New16BitUUID(bps.ServiceBloodPressure)},
		Interval:     bluetooth.NewDuration(b.opts.AdvInterval),
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}

	b.post(logic.StackEvent{Type: logic.EventStackReady})
	return nil
}

func (b *BlueZStack) StartAdvertising() error {
	if b.adv == nil {
		return ErrNotSupported
	}
	if b.LinkState() == logic.LinkConnected {
		return nil
	}
	// BlueZ refuses to start an advertisement that is already registered.
	_ = b.adv.Stop()
	if err := b.adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	b.setState(logic.LinkAdvertising)
	return nil
}

func (b *BlueZStack) PumpEvents() {
	b.pump(b.apply)
}

func (b *BlueZStack) apply(ev logic.StackEvent) bool {
	switch ev.Type {
	case logic.EventStackReady:
		b.setState(logic.LinkStopped)
	case logic.EventLinkEstablished:
		b.setState(logic.LinkConnected)
		b.peer = ev.Peer
	case logic.EventLinkLost:
		b.setState(logic.LinkStopped)
		b.peer = ""
		b.notify = 0
		b.batteryOn = false
	case logic.EventMeasurementCCCD:
		b.notify = ev.Flags
	case logic.EventBatteryNotifyEnabled:
		b.batteryOn = true
	case logic.EventBatteryNotifyDisabled:
		b.batteryOn = false
	}
	return true
}

func (b *BlueZStack) TriggerMeasurementUpdate() {
	level := b.battery.Measure()
	if !writeValue(b.logger, "battery_level", &b.batteryLevel, []byte{level}) {
		return
	}
	if b.batteryOn && b.LinkState() == logic.LinkConnected {
		b.observer.OnBattery(b.peer, level)
	}
}

func (b *BlueZStack) TriggerSimulatedReport() {
	r := b.sim.Next(time.Now())
	if b.LinkState() != logic.LinkConnected || !b.notify.Any() {
		return
	}
	if !writeValue(b.logger, "measurement", &b.measurement, r.Encode()) {
		return
	}
	b.observer.OnRecord(b.peer, r)
}

func (b *BlueZStack) NotifyFlags() logic.NotifyFlags {
	return b.notify
}

func (b *BlueZStack) DeferredWriteCount() uint32 {
	return 0
}

func (b *BlueZStack) PersistDeferredWrites() error {
	return nil
}
