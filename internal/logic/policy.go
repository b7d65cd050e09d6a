package logic

// SleepAction is what the power policy commits to for one loop iteration.
type SleepAction uint8

const (
	// SleepStay keeps the CPU running; an in-flight radio event must not be disturbed.
	SleepStay SleepAction = iota
	SleepIdle
	SleepDeep
)

func (a SleepAction) String() string {
	switch a {
	case SleepIdle:
		return "IDLE"
	case SleepDeep:
		return "DEEP"
	}
	return "STAY"
}

// Depth returns the sleep depth entered for the action.
func (a SleepAction) Depth() SleepDepth {
	switch a {
	case SleepIdle:
		return DepthIdle
	case SleepDeep:
		return DepthDeep
	}
	return DepthActive
}

type sleepKey struct {
	negotiated SleepDepth
	substate   RadioSubstate
	queueEmpty bool
}

// sleepTable lists every (negotiated mode, radio substate, output queue empty)
// combination that allows the CPU to sleep. Missing keys mean SleepStay.
var sleepTable = buildSleepTable()

func buildSleepTable() map[sleepKey]SleepAction {
	t := make(map[sleepKey]SleepAction)

	// Deepest mode granted: only sleep deep once the radio is clock-gated or
	// already retained and the debug output has fully left the chip.
	for _, sub := range []RadioSubstate{SubstateClockGatedReady, SubstateDeepRetention} {
		t[sleepKey{DepthDeep, sub, true}] = SleepDeep
		t[sleepKey{DepthDeep, sub, false}] = SleepIdle
	}

	// Shallower mode granted: idle unless the radio is closing an event.
	// Unknown substates are not listed.
	for _, neg := range []SleepDepth{DepthActive, DepthIdle} {
		for _, sub := range []RadioSubstate{
			SubstateActive,
			SubstateSleep,
			SubstateClockGatedReady,
			SubstateClockStable,
			SubstateDeepRetention,
			SubstateHibernate,
		} {
			t[sleepKey{neg, sub, true}] = SleepIdle
			t[sleepKey{neg, sub, false}] = SleepIdle
		}
	}
	return t
}

// DecideSleep maps the negotiated sleep mode, the radio substate and the
// output-queue state to a sleep action. It never returns SleepDeep when
// queueEmpty is false.
func DecideSleep(negotiated SleepDepth, substate RadioSubstate, queueEmpty bool) SleepAction {
	return sleepTable[sleepKey{negotiated, substate, queueEmpty}]
}
