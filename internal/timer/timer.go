// Package timer provides the periodic tick interrupt source.
package timer

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultPeriod matches the one second watchdog counter of the reference board.
const DefaultPeriod = time.Second

// Lines is the interrupt controller seen by an interrupt source.
type Lines interface {
	Raise()
	Disable()
	Enable()
}

// Source fires an interrupt handler at a fixed period.
type Source struct {
	lines  Lines
	period time.Duration
	acks   atomic.Uint64
}

// NewSource creates a tick source. period <= 0 uses DefaultPeriod.
func NewSource(lines Lines, period time.Duration) *Source {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Source{lines: lines, period: period}
}

// Period returns the tick period.
func (s *Source) Period() time.Duration {
	return s.period
}

// Run fires isr every period until ctx is done.
func (s *Source) Run(ctx context.Context, isr func()) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	s.RunOn(ctx, ticker.C, isr)
}

// RunOn fires isr once per value received on tick until ctx is done.
func (s *Source) RunOn(ctx context.Context, tick <-chan time.Time, isr func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.Fire(isr)
		}
	}
}

// Fire delivers one interrupt: the pending line wakes a sleeping CPU, the
// handler runs inside the interrupt mask, then the request is acknowledged.
func (s *Source) Fire(isr func()) {
	s.lines.Raise()
	s.lines.Disable()
	isr()
	s.acks.Add(1)
	s.lines.Enable()
}

// Acked returns how many interrupts have been serviced.
func (s *Source) Acked() uint64 {
	return s.acks.Load()
}
