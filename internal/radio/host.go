package radio

import (
	"sync"

	"github.com/sweeney/bp-sensor/internal/logic"
)

// hostRadio is the link-layer model shared by the host stacks: a queue of
// pending notifications, the link state, and the sleep negotiation rules.
// While notifications are queued the radio is treated as closing an event,
// so the loop neither sleeps deeply nor idles past them.
type hostRadio struct {
	mu      sync.Mutex
	state   logic.LinkState
	queue   []logic.StackEvent
	handler Handler
	wake    func()
}

func (h *hostRadio) initHost(wake func()) {
	if wake == nil {
		wake = func() {}
	}
	h.state = logic.LinkInitializing
	h.wake = wake
}

// post queues a notification and wakes the CPU. Safe from any goroutine.
func (h *hostRadio) post(evs ...logic.StackEvent) {
	h.mu.Lock()
	h.queue = append(h.queue, evs...)
	h.mu.Unlock()
	h.wake()
}

func (h *hostRadio) setHandler(fn Handler) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

func (h *hostRadio) setState(s logic.LinkState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *hostRadio) LinkState() logic.LinkState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *hostRadio) pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

func (h *hostRadio) ProposeSleepMode(requested logic.SleepDepth) logic.SleepDepth {
	if h.pending() > 0 && requested > logic.DepthIdle {
		return logic.DepthIdle
	}
	return requested
}

func (h *hostRadio) RadioSubstate() logic.RadioSubstate {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) > 0 {
		return logic.SubstateEventClose
	}
	switch h.state {
	case logic.LinkInitializing:
		return logic.SubstateActive
	case logic.LinkAdvertising, logic.LinkConnected:
		return logic.SubstateClockGatedReady
	}
	return logic.SubstateDeepRetention
}

// pump drains the queue until it stays empty, including events posted by
// apply or the handler along the way. apply updates stack-internal state for
// each event and reports whether the handler should see it.
func (h *hostRadio) pump(apply func(logic.StackEvent) bool) {
	for {
		h.mu.Lock()
		evs := h.queue
		h.queue = nil
		handler := h.handler
		h.mu.Unlock()

		if len(evs) == 0 {
			return
		}
		for _, ev := range evs {
			if apply != nil && !apply(ev) {
				continue
			}
			if handler != nil {
				handler(ev)
			}
		}
	}
}
