// Package debugout is the debug UART of the sensor: a software transmit
// buffer in front of a small hardware FIFO, drained in the background into a
// sink (a serial port or stderr). The loop consults Depths before sleeping
// deeply or flushing to storage so no debug output is cut off mid-line.
package debugout

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
)

// Defaults matching the reference board's UART component.
const (
	DefaultBufferSize = 512
	DefaultFIFOSize   = 8
)

// Options configures a Channel.
type Options struct {
	BufferSize int // software transmit buffer, bytes
	FIFOSize   int // bytes moved to the sink per transfer
	// Baud paces the sink like a real UART (10 bit times per byte). 0 writes
	// as fast as the sink accepts.
	Baud int
	// OnDrained is called each time both queues become empty.
	OnDrained func()
}

// Channel is an io.Writer whose writes never block the caller.
type Channel struct {
	sink      io.Writer
	tx        *ringbuffer.RingBuffer
	fifoSize  int
	byteTime  time.Duration
	onDrained func()

	mu       sync.Mutex // makes (tx length, inFlight) a consistent pair
	inFlight int

	ready   chan struct{}
	dropped atomic.Uint64
	sent    atomic.Uint64
}

// New creates a debug channel writing to sink.
func New(sink io.Writer, opts Options) *Channel {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.FIFOSize <= 0 {
		opts.FIFOSize = DefaultFIFOSize
	}
	c := &Channel{
		sink:      sink,
		tx:        ringbuffer.New(opts.BufferSize),
		fifoSize:  opts.FIFOSize,
		onDrained: opts.OnDrained,
		ready:     make(chan struct{}, 1),
	}
	if opts.Baud > 0 {
		c.byteTime = 10 * time.Second / time.Duration(opts.Baud)
	}
	return c
}

// Write queues p for transmission. Bytes that do not fit are dropped and
// counted; Write still reports len(p) so loggers never stall on the UART.
func (c *Channel) Write(p []byte) (int, error) {
	// The ring is non-blocking; its only errors report a short write.
	c.mu.Lock()
	n, _ := c.tx.Write(p)
	c.mu.Unlock()
	if n < len(p) {
		c.dropped.Add(uint64(len(p) - n))
	}
	if n > 0 {
		select {
		case c.ready <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

// Depths returns the bytes waiting in the transmit buffer and the bytes in
// the FIFO currently being shifted out.
func (c *Channel) Depths() (buffered, fifo int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx.Length(), c.inFlight
}

// Empty reports whether both queues are empty.
func (c *Channel) Empty() bool {
	b, f := c.Depths()
	return b+f == 0
}

// Dropped returns the number of bytes lost to a full buffer.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// Sent returns the number of bytes handed to the sink.
func (c *Channel) Sent() uint64 {
	return c.sent.Load()
}

// Run drains the buffer into the sink until ctx is done.
func (c *Channel) Run(ctx context.Context) {
	for {
		if !c.transfer() {
			select {
			case <-ctx.Done():
				return
			case <-c.ready:
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Flush drains synchronously until the queues are empty or timeout elapses.
// Used on shutdown after Run has stopped.
func (c *Channel) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !c.transfer() {
			return true
		}
	}
	return c.Empty()
}

// transfer moves one FIFO load to the sink. Returns false if there was
// nothing to send.
func (c *Channel) transfer() bool {
	buf := make([]byte, c.fifoSize)

	c.mu.Lock()
	n, err := c.tx.Read(buf)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		c.mu.Unlock()
		return false
	}
	c.inFlight = n
	c.mu.Unlock()

	if n == 0 {
		return false
	}

	// Sink errors drop the FIFO contents, as a UART with no receiver would.
	_, _ = c.sink.Write(buf[:n])
	if c.byteTime > 0 {
		time.Sleep(time.Duration(n) * c.byteTime)
	}
	c.sent.Add(uint64(n))

	c.mu.Lock()
	c.inFlight = 0
	drained := c.tx.IsEmpty()
	c.mu.Unlock()

	if drained && c.onDrained != nil {
		c.onDrained()
	}
	return true
}
