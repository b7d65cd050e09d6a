//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBank owns the GPIO chip and the output lines requested from it.
type RealBank struct {
	chip      *gpiocdev.Chip
	activeLow bool
	lines     []*gpiocdev.Line
}

// NewRealBank opens the GPIO chip for actual Raspberry Pi hardware.
func NewRealBank(chipName string, activeLow bool) (*RealBank, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealBank{chip: chip, activeLow: activeLow}, nil
}

// Output requests pin as an output line, initially off.
func (b *RealBank) Output(name string, pin int) (Indicator, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("bp-sensor-" + name),
	}
	if b.activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := b.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
	}
	b.lines = append(b.lines, line)
	return &realIndicator{name: name, line: line}, nil
}

// Close releases GPIO resources.
// Turns every LED off and reconfigures the pins to input with pull-down
// (matching Pi boot defaults) before closing.
func (b *RealBank) Close() error {
	var errs []error

	for _, line := range b.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear pin %d: %w", line.Offset(), err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", line.Offset(), err))
		}
	}
	b.lines = nil

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type realIndicator struct {
	name string
	line *gpiocdev.Line
}

func (r *realIndicator) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", r.name, err)
	}
	return nil
}
