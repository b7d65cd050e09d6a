package irq

import (
	"testing"
	"time"

	"github.com/sweeney/bp-sensor/internal/logic"
)

func TestSleepReturnsOnPendingInterrupt(t *testing.T) {
	c := New(5 * time.Second)
	c.Raise()

	done := make(chan struct{})
	go func() {
		c.Sleep(logic.DepthDeep)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep did not return on pending interrupt")
	}
	if got := c.Sleeps(logic.DepthDeep); got != 1 {
		t.Errorf("expected 1 deep sleep, got %d", got)
	}
}

func TestSleepWakesOnRaiseWhileMasked(t *testing.T) {
	c := New(5 * time.Second)

	done := make(chan struct{})
	go func() {
		c.Disable()
		c.Sleep(logic.DepthIdle)
		c.Enable()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.Raise()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("masked sleep did not wake on raise")
	}
}

func TestSleepBoundedByMaxSleep(t *testing.T) {
	c := New(10 * time.Millisecond)

	start := time.Now()
	c.Sleep(logic.DepthIdle)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("sleep exceeded bound: %v", elapsed)
	}
	if got := c.Sleeps(logic.DepthIdle); got != 1 {
		t.Errorf("expected 1 idle sleep, got %d", got)
	}
}

func TestRaiseDoesNotBlock(t *testing.T) {
	c := New(0)
	for i := 0; i < 10; i++ {
		c.Raise()
	}
}

func TestSleepsOutOfRange(t *testing.T) {
	c := New(time.Millisecond)
	if got := c.Sleeps(logic.SleepDepth(42)); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
