package logic

import "sync/atomic"

// TickCounter is written from the timer interrupt and drained by the loop.
// Every access is a single atomic operation so an increment is never torn
// or lost between the loop's read and its clear.
type TickCounter struct {
	n atomic.Uint32
}

// Increment records one timer tick. Safe from interrupt context.
func (t *TickCounter) Increment() {
	t.n.Add(1)
}

// Drain returns the ticks accumulated since the last drain and resets the
// counter to zero in the same operation.
func (t *TickCounter) Drain() uint32 {
	return t.n.Swap(0)
}

// Pending returns the current count without clearing it.
func (t *TickCounter) Pending() uint32 {
	return t.n.Load()
}
