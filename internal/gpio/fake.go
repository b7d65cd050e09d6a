package gpio

import "sync"

// FakeIndicator is a test double that records every write.
// Safe for concurrent use; the timer interrupt and the loop both drive LEDs.
type FakeIndicator struct {
	mu      sync.Mutex
	on      bool
	history []bool

	// SetError, if set, will be returned by Set() and the state is unchanged.
	SetError error
}

// NewFakeIndicator creates a FakeIndicator that starts off.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Set records the requested state.
func (f *FakeIndicator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.on = on
	f.history = append(f.history, on)
	return nil
}

// On returns the current state.
func (f *FakeIndicator) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// History returns a copy of every state written, oldest first.
func (f *FakeIndicator) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// Toggles returns how many writes changed the state.
func (f *FakeIndicator) Toggles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	prev := false
	for _, v := range f.history {
		if v != prev {
			n++
		}
		prev = v
	}
	return n
}

// Reset clears the recorded history.
func (f *FakeIndicator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.history = nil
}
