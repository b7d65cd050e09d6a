// Package core runs the sensor control loop: the timer interrupt body, the
// power policy, the connection event scheduler, the link lifecycle handler
// and the event pump. All hardware and radio access goes through the
// interfaces in Deps.
package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sweeney/bp-sensor/internal/logic"
	"github.com/sweeney/bp-sensor/internal/radio"
)

// CPU masks interrupts and enters low-power modes.
type CPU interface {
	Disable()
	Enable()
	// Sleep blocks until a wake source fires. Called with interrupts masked.
	Sleep(depth logic.SleepDepth)
}

// OutputQueues reports the depths of the debug channel's software transmit
// buffer and hardware FIFO.
type OutputQueues interface {
	Depths() (buffered, fifo int)
}

// Indicator is a single on/off visual indicator.
type Indicator interface {
	Set(on bool) error
}

// Indicators groups the board LEDs. Nil entries are skipped.
type Indicators struct {
	Advertising Indicator // blinks on every tick while discoverable
	Disconnect  Indicator // lit after the link drops, cleared on connect
	LowPower    Indicator // lit while the last iteration slept deeply
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Stack      radio.Stack
	CPU        CPU
	Output     OutputQueues
	Indicators Indicators
	Logger     *slog.Logger
}

// Snapshot is a consistent view of the controller for status reporting.
type Snapshot struct {
	Link               logic.LinkState
	Peer               string
	Notify             logic.NotifyFlags
	MeasurementEnabled bool
	LastSleep          logic.SleepAction
	TicksPending       uint32
	PendingWrites      uint32
	StartErr           error
	LastPersistErr     error
	Counts             logic.Counts
}

// Controller owns the control loop state. OnTimerTick runs in interrupt
// context; everything else runs in loop context, including HandleStackEvent,
// which the stack calls from PumpEvents.
type Controller struct {
	stack  radio.Stack
	cpu    CPU
	output OutputQueues
	leds   Indicators
	logger *slog.Logger

	// Shared with interrupt context.
	ticks  logic.TickCounter
	advLit atomic.Bool

	// Loop context only.
	session   logic.Session
	lastSleep logic.SleepAction
	deepLit   bool

	mu   sync.Mutex
	snap Snapshot
}

// New creates a controller. Call Start before the first Step.
func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		stack:  deps.Stack,
		cpu:    deps.CPU,
		output: deps.Output,
		leds:   deps.Indicators,
		logger: logger,
	}
}

// Start turns all indicators off and brings up the radio stack with the
// lifecycle handler registered. A bring-up failure is logged and returned,
// but the controller stays usable: the loop keeps running degraded.
func (c *Controller) Start() error {
	c.setIndicator("advertising", c.leds.Advertising, false)
	c.setIndicator("disconnect", c.leds.Disconnect, false)
	c.setIndicator("low_power", c.leds.LowPower, false)

	err := c.stack.Start(c.HandleStackEvent)
	if err != nil {
		c.logger.Error("radio stack bring-up failed", "error", err)
	} else {
		c.logger.Info("radio stack started")
	}

	c.mu.Lock()
	c.snap.StartErr = err
	c.mu.Unlock()
	c.publish()
	return err
}

// OnTimerTick is the body of the periodic timer interrupt.
func (c *Controller) OnTimerTick() {
	if c.stack.LinkState() == logic.LinkAdvertising {
		lit := !c.advLit.Load()
		c.advLit.Store(lit)
		if c.leds.Advertising != nil {
			_ = c.leds.Advertising.Set(lit)
		}
	}
	c.ticks.Increment()
}

// HandleStackEvent is the link lifecycle handler. It never blocks.
func (c *Controller) HandleStackEvent(ev logic.StackEvent) {
	link := c.stack.LinkState()
	reaction := c.session.Handle(ev, link)

	c.mu.Lock()
	c.snap.Counts.StackEvents++
	c.mu.Unlock()

	switch reaction {
	case logic.ReactAdvertise:
		if err := c.stack.StartAdvertising(); err != nil {
			c.logger.Warn("restart advertising failed", "error", err)
		}
		if ev.Type == logic.EventLinkLost {
			c.setIndicator("disconnect", c.leds.Disconnect, true)
		}
	case logic.ReactLinkUp:
		c.advLit.Store(false)
		c.setIndicator("advertising", c.leds.Advertising, false)
		c.setIndicator("disconnect", c.leds.Disconnect, false)
	}

	if ev.Type != logic.EventIndicationConfirmed {
		c.logger.Info("stack event", "event", ev.Type, "peer", ev.Peer, "link", link)
	}
}

// Step runs one iteration of the control loop.
func (c *Controller) Step() {
	if c.stack.LinkState() != logic.LinkInitializing {
		c.powerPolicy()
	}

	if c.stack.LinkState() == logic.LinkConnected {
		c.serviceConnection()
	}

	c.stack.PumpEvents()

	c.mu.Lock()
	c.snap.Counts.Iterations++
	c.mu.Unlock()
	c.publish()
}

// Run steps the loop until ctx is done. Cancellation is noticed between
// iterations, so a sleeping loop needs a wake source to return promptly.
func (c *Controller) Run(ctx context.Context) {
	for ctx.Err() == nil {
		c.Step()
	}
}

func (c *Controller) powerPolicy() {
	negotiated := c.stack.ProposeSleepMode(logic.DepthDeep)

	c.cpu.Disable()
	substate := c.stack.RadioSubstate()
	action := logic.DecideSleep(negotiated, substate, c.outputEmpty())
	if action != logic.SleepStay {
		c.cpu.Sleep(action.Depth())
	}
	c.cpu.Enable()

	c.mu.Lock()
	switch action {
	case logic.SleepDeep:
		c.snap.Counts.SleepDeep++
	case logic.SleepIdle:
		c.snap.Counts.SleepIdle++
	default:
		c.snap.Counts.SleepDeclined++
	}
	c.mu.Unlock()

	c.lastSleep = action
	if deep := action == logic.SleepDeep; deep != c.deepLit {
		c.deepLit = deep
		c.setIndicator("low_power", c.leds.LowPower, deep)
	}
}

func (c *Controller) serviceConnection() {
	if elapsed := c.ticks.Drain(); elapsed != 0 {
		measured := false
		if c.session.MeasurementEnabled() {
			c.stack.TriggerMeasurementUpdate()
			c.stack.PumpEvents()
			measured = true
		}
		reported := false
		if c.stack.NotifyFlags().Any() {
			c.stack.TriggerSimulatedReport()
			reported = true
		}

		c.mu.Lock()
		c.snap.Counts.TickBatches++
		c.snap.Counts.TicksConsumed += uint64(elapsed)
		if measured {
			c.snap.Counts.Measurements++
		}
		if reported {
			c.snap.Counts.Reports++
		}
		c.mu.Unlock()
	}

	if c.stack.DeferredWriteCount() != 0 && c.outputEmpty() {
		err := c.stack.PersistDeferredWrites()

		c.mu.Lock()
		c.snap.Counts.PersistAttempts++
		if err != nil {
			c.snap.Counts.PersistFailures++
		}
		c.snap.LastPersistErr = err
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("persist deferred writes failed", "error", err)
		} else {
			c.logger.Info("deferred writes persisted")
		}
	}
}

// outputEmpty reports whether the debug channel has nothing left to send.
func (c *Controller) outputEmpty() bool {
	if c.output == nil {
		return true
	}
	buffered, fifo := c.output.Depths()
	return buffered == 0 && fifo == 0
}

func (c *Controller) setIndicator(name string, ind Indicator, on bool) {
	if ind == nil {
		return
	}
	if err := ind.Set(on); err != nil {
		c.logger.Debug("indicator write failed", "indicator", name, "error", err)
	}
}

// publish refreshes the loop-owned fields of the snapshot.
func (c *Controller) publish() {
	link := c.stack.LinkState()
	pending := c.stack.DeferredWriteCount()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Link = link
	c.snap.Peer = c.session.Peer()
	c.snap.Notify = c.session.Notify()
	c.snap.MeasurementEnabled = c.session.MeasurementEnabled()
	c.snap.LastSleep = c.lastSleep
	c.snap.PendingWrites = pending
}

// Snapshot returns the state as of the end of the last iteration. Safe from
// any goroutine.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.snap
	c.mu.Unlock()
	s.TicksPending = c.ticks.Pending()
	return s
}

// Counts returns the loop counters. Safe from any goroutine.
func (c *Controller) Counts() logic.Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Counts
}
