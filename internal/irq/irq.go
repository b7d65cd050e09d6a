// Package irq models the interrupt mask and wait-for-interrupt sleep of the
// MCU on a host. Interrupt sources run their handlers inside the mask, so a
// handler never overlaps a loop critical section. Like WFI, a sleep entered
// with interrupts masked still returns as soon as an interrupt is pending.
package irq

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/bp-sensor/internal/logic"
)

// CPU is the interrupt controller and power-mode entry point.
type CPU struct {
	mask     sync.Mutex
	pending  chan struct{}
	maxSleep time.Duration
	sleeps   [logic.DepthHibernate + 1]atomic.Uint64
}

// New creates a CPU. maxSleep bounds a single sleep in case no wake source
// fires; 0 disables the bound.
func New(maxSleep time.Duration) *CPU {
	return &CPU{
		pending:  make(chan struct{}, 1),
		maxSleep: maxSleep,
	}
}

// Disable masks interrupts. Blocks while an interrupt handler is running.
func (c *CPU) Disable() {
	c.mask.Lock()
}

// Enable unmasks interrupts. Handlers held off by the mask run afterwards.
func (c *CPU) Enable() {
	c.mask.Unlock()
}

// Raise marks an interrupt as pending. Never blocks.
func (c *CPU) Raise() {
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// Sleep enters the given power mode and returns on the next pending
// interrupt. A pending interrupt raised before the call returns immediately.
func (c *CPU) Sleep(depth logic.SleepDepth) {
	if int(depth) < len(c.sleeps) {
		c.sleeps[depth].Add(1)
	}

	if c.maxSleep <= 0 {
		<-c.pending
		return
	}

	timer := time.NewTimer(c.maxSleep)
	defer timer.Stop()
	select {
	case <-c.pending:
	case <-timer.C:
	}
}

// Sleeps returns how many times the given depth was entered.
func (c *CPU) Sleeps(depth logic.SleepDepth) uint64 {
	if int(depth) >= len(c.sleeps) {
		return 0
	}
	return c.sleeps[depth].Load()
}
