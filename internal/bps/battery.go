package bps

// Battery models a coin cell read through the ADC. Each measurement drains the
// simulated cell a little; a drained cell is "replaced" by a full one.
type Battery struct {
	millivolts int
	stepMV     int
	level      uint8
}

const (
	batteryFullMV  = 3000
	batteryEmptyMV = 2000
)

// NewBattery returns a full battery that drops stepMV per measurement.
func NewBattery(stepMV int) *Battery {
	if stepMV <= 0 {
		stepMV = 10
	}
	return &Battery{millivolts: batteryFullMV, stepMV: stepMV, level: 100}
}

// Measure samples the cell and returns the level in percent (0..100).
func (b *Battery) Measure() uint8 {
	b.level = levelFromMV(b.millivolts)
	b.millivolts -= b.stepMV
	if b.millivolts < batteryEmptyMV {
		b.millivolts = batteryFullMV
	}
	return b.level
}

// Level returns the last measured level.
func (b *Battery) Level() uint8 {
	return b.level
}

func levelFromMV(mv int) uint8 {
	switch {
	case mv >= batteryFullMV:
		return 100
	case mv <= batteryEmptyMV:
		return 0
	}
	return uint8((mv - batteryEmptyMV) * 100 / (batteryFullMV - batteryEmptyMV))
}
