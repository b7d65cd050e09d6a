// Package gpio drives the board's indicator LEDs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator is one on/off LED.
type Indicator interface {
	// Set drives the LED. on is the logical state; active-low wiring is
	// handled by the implementation.
	Set(on bool) error
}

// Pin definitions (BCM numbering)
const (
	PinAdvertising = 17 // blinks while discoverable
	PinDisconnect  = 27 // lit after the link drops
	PinLowPower    = 22 // lit while the loop sleeps deeply
)

// DefaultChip is the GPIO character device the pins live on.
const DefaultChip = "gpiochip0"
