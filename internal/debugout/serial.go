package debugout

import (
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// OpenSerial opens a UART as the debug sink, 8N1.
func OpenSerial(address string, baud int) (io.WriteCloser, error) {
	port, err := serial.Open(&serial.Config{
		Address:  address,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open debug uart %s: %w", address, err)
	}
	return port, nil
}
