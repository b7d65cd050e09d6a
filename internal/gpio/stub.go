//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealBank is not available on non-Linux platforms.
type RealBank struct{}

// NewRealBank returns an error on non-Linux platforms.
func NewRealBank(chipName string, activeLow bool) (*RealBank, error) {
	return nil, errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (b *RealBank) Output(name string, pin int) (Indicator, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (b *RealBank) Close() error {
	return nil
}
