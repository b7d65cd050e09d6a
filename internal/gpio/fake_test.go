package gpio

import (
	"errors"
	"sync"
	"testing"
)

func TestFakeIndicatorSet(t *testing.T) {
	f := NewFakeIndicator()

	if f.On() {
		t.Fatal("expected indicator to start off")
	}

	for _, v := range []bool{true, false, true, true} {
		if err := f.Set(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !f.On() {
		t.Error("expected indicator on after last write")
	}
	if got := len(f.History()); got != 4 {
		t.Errorf("history length: got %d, want 4", got)
	}
	if got := f.Toggles(); got != 3 {
		t.Errorf("toggles: got %d, want 3", got)
	}
}

func TestFakeIndicatorSetError(t *testing.T) {
	f := NewFakeIndicator()
	f.SetError = errors.New("line busy")

	if err := f.Set(true); err == nil {
		t.Fatal("expected error")
	}
	if f.On() {
		t.Error("state must not change on error")
	}
	if len(f.History()) != 0 {
		t.Error("failed writes must not be recorded")
	}
}

func TestFakeIndicatorReset(t *testing.T) {
	f := NewFakeIndicator()
	f.Set(true)
	f.Reset()

	if f.On() || len(f.History()) != 0 {
		t.Error("expected clean state after Reset")
	}
}

func TestFakeIndicatorConcurrent(t *testing.T) {
	f := NewFakeIndicator()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(on bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.Set(on)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if got := len(f.History()); got != 800 {
		t.Errorf("history length: got %d, want 800", got)
	}
}

func TestFakeIndicatorImplementsIndicator(t *testing.T) {
	var _ Indicator = NewFakeIndicator()
}

func TestPinsDistinct(t *testing.T) {
	pins := map[int]string{}
	for name, pin := range map[string]int{
		"advertising": PinAdvertising,
		"disconnect":  PinDisconnect,
		"low_power":   PinLowPower,
	} {
		if other, ok := pins[pin]; ok {
			t.Errorf("pin %d used by both %s and %s", pin, name, other)
		}
		pins[pin] = name
	}
}
