package radio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/bp-sensor/internal/bps"
	"github.com/sweeney/bp-sensor/internal/logic"
	"github.com/sweeney/bp-sensor/internal/store"
)

type recordingObserver struct {
	mu      sync.Mutex
	records []bps.Record
	levels  []uint8
}

func (o *recordingObserver) OnRecord(peer string, r bps.Record) {
	o.mu.Lock()
	o.records = append(o.records, r)
	o.mu.Unlock()
}

func (o *recordingObserver) OnBattery(peer string, level uint8) {
	o.mu.Lock()
	o.levels = append(o.levels, level)
	o.mu.Unlock()
}

type eventLog struct {
	events []logic.StackEvent
}

func (l *eventLog) handle(ev logic.StackEvent) {
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []logic.EventType {
	var out []logic.EventType
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

type failingStore struct {
	err error
}

func (f failingStore) SaveBond(context.Context, store.Bond) error  { return f.err }
func (f failingStore) Bonds(context.Context) ([]store.Bond, error) { return nil, nil }

func startedSim(t *testing.T, opts SimOptions) (*SimStack, *eventLog) {
	t.Helper()
	s := NewSimStack(opts)
	log := &eventLog{}
	require.NoError(t, s.Start(log.handle))
	s.PumpEvents()
	require.Equal(t, logic.LinkStopped, s.LinkState())
	return s, log
}

func connect(t *testing.T, s *SimStack, peer string, flags logic.NotifyFlags) {
	t.Helper()
	require.NoError(t, s.StartAdvertising())
	require.NoError(t, s.Connect(peer))
	if flags.Any() {
		s.Subscribe(flags)
	}
	s.PumpEvents()
	require.Equal(t, logic.LinkConnected, s.LinkState())
}

func TestSimStack_StartQueuesStackReady(t *testing.T) {
	s := NewSimStack(SimOptions{})
	log := &eventLog{}

	require.NoError(t, s.Start(log.handle))
	assert.Equal(t, logic.LinkInitializing, s.LinkState())
	assert.Equal(t, logic.SubstateEventClose, s.RadioSubstate())
	assert.Equal(t, logic.DepthIdle, s.ProposeSleepMode(logic.DepthDeep))

	s.PumpEvents()
	assert.Equal(t, []logic.EventType{logic.EventStackReady}, log.types())
	assert.Equal(t, logic.LinkStopped, s.LinkState())
	assert.Equal(t, logic.SubstateDeepRetention, s.RadioSubstate())
	assert.Equal(t, logic.DepthDeep, s.ProposeSleepMode(logic.DepthDeep))
}

func TestSimStack_ConnectRequiresAdvertising(t *testing.T) {
	s, _ := startedSim(t, SimOptions{})

	assert.ErrorIs(t, s.Connect("aa:bb"), ErrNotAdvertising)

	require.NoError(t, s.StartAdvertising())
	assert.Equal(t, logic.SubstateClockGatedReady, s.RadioSubstate())
	assert.NoError(t, s.Connect("aa:bb"))
}

func TestSimStack_WakeOnPost(t *testing.T) {
	var wakes int
	s := NewSimStack(SimOptions{Wake: func() { wakes++ }})
	require.NoError(t, s.Start(func(logic.StackEvent) {}))
	assert.Equal(t, 1, wakes)
}

func TestSimStack_NewPeerMakesWritesPending(t *testing.T) {
	s, log := startedSim(t, SimOptions{})

	connect(t, s, "aa:bb", logic.FlagIndicate)

	assert.Equal(t, []logic.EventType{
		logic.EventStackReady,
		logic.EventLinkEstablished,
		logic.EventMeasurementCCCD,
	}, log.types())
	assert.Equal(t, logic.FlagIndicate, s.NotifyFlags())
	assert.Equal(t, uint32(2), s.DeferredWriteCount())

	require.NoError(t, s.PersistDeferredWrites())
	assert.Zero(t, s.DeferredWriteCount())
}

func TestSimStack_PersistFailureKeepsCount(t *testing.T) {
	s, _ := startedSim(t, SimOptions{})
	connect(t, s, "aa:bb", 0)
	require.Equal(t, uint32(1), s.DeferredWriteCount())

	s.FailPersist(1)
	assert.ErrorIs(t, s.PersistDeferredWrites(), ErrFlashBusy)
	assert.Equal(t, uint32(1), s.DeferredWriteCount())

	assert.NoError(t, s.PersistDeferredWrites())
	assert.Zero(t, s.DeferredWriteCount())
}

func TestSimStack_StoreErrorKeepsCount(t *testing.T) {
	boom := errors.New("disk full")
	s, _ := startedSim(t, SimOptions{Store: failingStore{err: boom}})
	connect(t, s, "aa:bb", 0)

	err := s.PersistDeferredWrites()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint32(1), s.DeferredWriteCount())
}

func TestSimStack_BondedPeerRestoresWithoutWrites(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	s, _ := startedSim(t, SimOptions{Store: db})
	connect(t, s, "aa:bb", logic.FlagNotify)
	s.SubscribeBattery(true)
	s.PumpEvents()
	require.NoError(t, s.PersistDeferredWrites())

	s.Disconnect()
	s.PumpEvents()
	assert.Equal(t, logic.LinkStopped, s.LinkState())
	assert.Zero(t, s.NotifyFlags())

	// A fresh stack over the same store knows the peer.
	s2, log := startedSim(t, SimOptions{Store: db})
	connect(t, s2, "aa:bb", 0)

	assert.Equal(t, logic.FlagNotify, s2.NotifyFlags())
	assert.Zero(t, s2.DeferredWriteCount())
	assert.Contains(t, log.types(), logic.EventBatteryNotifyEnabled)

	bonds, err := db.Bonds(context.Background())
	require.NoError(t, err)
	require.Len(t, bonds, 1)
	assert.Equal(t, "aa:bb", bonds[0].Peer)
	assert.True(t, bonds[0].Battery)
}

func TestSimStack_ReportsOnlyWhenSubscribed(t *testing.T) {
	obs := &recordingObserver{}
	s, log := startedSim(t, SimOptions{Observer: obs})

	s.TriggerSimulatedReport()
	assert.Empty(t, obs.records)
	assert.Equal(t, uint64(1), s.Records())

	connect(t, s, "aa:bb", logic.FlagIndicate)
	s.TriggerSimulatedReport()
	require.Len(t, obs.records, 1)

	// Indication confirmation arrives on the next pump.
	s.PumpEvents()
	assert.Equal(t, logic.EventIndicationConfirmed, log.events[len(log.events)-1].Type)
}

func TestSimStack_BatteryOnlyWhenEnabled(t *testing.T) {
	obs := &recordingObserver{}
	s, _ := startedSim(t, SimOptions{Observer: obs})
	connect(t, s, "aa:bb", 0)

	s.TriggerMeasurementUpdate()
	assert.Empty(t, obs.levels)

	s.SubscribeBattery(true)
	s.PumpEvents()
	s.TriggerMeasurementUpdate()
	assert.Len(t, obs.levels, 1)
}

func TestSimStack_PumpDrainsEventsPostedByHandler(t *testing.T) {
	s := NewSimStack(SimOptions{})
	var seen []logic.EventType
	require.NoError(t, s.Start(func(ev logic.StackEvent) {
		seen = append(seen, ev.Type)
		if ev.Type == logic.EventStackReady {
			s.post(logic.StackEvent{Type: logic.EventOther})
		}
	}))

	s.PumpEvents()
	assert.Equal(t, []logic.EventType{logic.EventStackReady, logic.EventOther}, seen)
	assert.Zero(t, s.pending())
}

func TestSimStack_RunPeer(t *testing.T) {
	s, log := startedSim(t, SimOptions{})
	require.NoError(t, s.StartAdvertising())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunPeer(ctx, PeerScript{
			Address:      "cc:dd",
			ConnectAfter: 5 * time.Millisecond,
			Session:      time.Hour,
			Flags:        logic.FlagNotify,
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		s.PumpEvents()
		return s.LinkState() == logic.LinkConnected && s.NotifyFlags() == logic.FlagNotify
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Contains(t, log.types(), logic.EventLinkEstablished)
}

func TestFakeStack_PersistScript(t *testing.T) {
	f := NewFakeStack(logic.LinkConnected)
	f.PendingWrites = 3
	f.PersistErrors = []error{ErrFlashBusy}

	assert.ErrorIs(t, f.PersistDeferredWrites(), ErrFlashBusy)
	assert.Equal(t, uint32(3), f.DeferredWriteCount())
	assert.NoError(t, f.PersistDeferredWrites())
	assert.Zero(t, f.DeferredWriteCount())
	assert.Equal(t, 2, f.Count("PersistDeferredWrites"))
}

func TestFakeStack_PumpDispatchesQueued(t *testing.T) {
	f := NewFakeStack(logic.LinkInitializing)
	log := &eventLog{}
	require.NoError(t, f.Start(log.handle))

	f.Queued = []logic.StackEvent{{Type: logic.EventStackReady}}
	f.PumpEvents()
	f.PumpEvents()
	assert.Equal(t, []logic.EventType{logic.EventStackReady}, log.types())
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	obs := Observers{a, b}

	obs.OnRecord("aa:bb", bps.Record{Systolic: 120})
	obs.OnBattery("aa:bb", 90)

	for _, o := range []*recordingObserver{a, b} {
		assert.Len(t, o.records, 1)
		assert.Equal(t, []uint8{90}, o.levels)
	}
}

// bondedSim returns a started stack whose store already knows peer with the
// given configuration, and no peer connected.
func bondedSim(t *testing.T, peer string, flags logic.NotifyFlags, battery bool, obs Observer) (*SimStack, *eventLog) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SaveBond(context.Background(), store.Bond{
		Peer:    peer,
		CCCD:    uint8(flags),
		Battery: battery,
	}))
	s, log := startedSim(t, SimOptions{Store: db, Observer: obs})
	return s, log
}

func TestSimStack_BondedReconnectWithSameConfigNeedsNoWrites(t *testing.T) {
	s, _ := bondedSim(t, "aa:bb", logic.FlagIndicate, true, nil)

	require.NoError(t, s.StartAdvertising())
	require.NoError(t, s.Connect("aa:bb"))
	s.Subscribe(logic.FlagIndicate)
	s.SubscribeBattery(true)
	s.PumpEvents()

	assert.Equal(t, logic.LinkConnected, s.LinkState())
	assert.Equal(t, logic.FlagIndicate, s.NotifyFlags())
	assert.Zero(t, s.DeferredWriteCount())
}

func TestSimStack_PeerWriteWinsOverBondReplay(t *testing.T) {
	s, log := bondedSim(t, "aa:bb", logic.FlagIndicate, false, nil)

	require.NoError(t, s.StartAdvertising())
	require.NoError(t, s.Connect("aa:bb"))
	s.Subscribe(logic.FlagNotify)
	s.PumpEvents()

	assert.Equal(t, logic.FlagNotify, s.NotifyFlags())
	assert.Equal(t, uint32(1), s.DeferredWriteCount())

	var cccd []logic.NotifyFlags
	for _, ev := range log.events {
		if ev.Type == logic.EventMeasurementCCCD {
			cccd = append(cccd, ev.Flags)
		}
	}
	assert.Equal(t, []logic.NotifyFlags{logic.FlagNotify}, cccd)
}

func TestSimStack_ReplayAfterDropIsDiscarded(t *testing.T) {
	obs := &recordingObserver{}
	s, log := bondedSim(t, "aa:bb", logic.FlagIndicate, true, obs)

	require.NoError(t, s.StartAdvertising())
	// The link comes up and drops before the bond replay is pumped.
	s.post(
		logic.StackEvent{Type: logic.EventLinkEstablished, Peer: "aa:bb"},
		logic.StackEvent{Type: logic.EventLinkLost},
	)
	s.PumpEvents()

	assert.Equal(t, logic.LinkStopped, s.LinkState())
	assert.Zero(t, s.NotifyFlags())
	assert.NotContains(t, log.types(), logic.EventMeasurementCCCD)
	assert.NotContains(t, log.types(), logic.EventBatteryNotifyEnabled)

	// An unbonded peer that never subscribes gets nothing.
	require.NoError(t, s.StartAdvertising())
	require.NoError(t, s.Connect("cc:dd"))
	s.PumpEvents()
	require.Equal(t, logic.LinkConnected, s.LinkState())
	assert.Zero(t, s.NotifyFlags())

	s.TriggerSimulatedReport()
	s.TriggerMeasurementUpdate()
	assert.Empty(t, obs.records)
	assert.Empty(t, obs.levels)
	assert.Equal(t, uint32(1), s.DeferredWriteCount())
}

func TestSimStack_WritesWhileDisconnectedAreIgnored(t *testing.T) {
	s, log := startedSim(t, SimOptions{})

	s.Subscribe(logic.FlagIndicate)
	s.SubscribeBattery(true)
	s.PumpEvents()

	assert.Zero(t, s.NotifyFlags())
	assert.Zero(t, s.DeferredWriteCount())
	assert.Equal(t, []logic.EventType{logic.EventStackReady}, log.types())
}

func TestSimStack_PumpDrainsLongChains(t *testing.T) {
	s := NewSimStack(SimOptions{})
	const chain = 100
	var seen int
	require.NoError(t, s.Start(func(ev logic.StackEvent) {
		seen++
		if seen < chain {
			s.post(logic.StackEvent{Type: logic.EventOther})
		}
	}))

	s.PumpEvents()
	assert.Equal(t, chain, seen)
	assert.Zero(t, s.pending())
}
