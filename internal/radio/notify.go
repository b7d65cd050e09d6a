package radio

import (
	"io"
	"log/slog"
)

// valueWriter is a local characteristic whose writes reach a subscribed peer.
type valueWriter interface {
	Write(p []byte) (int, error)
}

// writeValue stores v in the characteristic and reports whether it was sent.
// A failed write is logged; the loop carries on without it.
func writeValue(logger *slog.Logger, name string, w valueWriter, v []byte) bool {
	if _, err := w.Write(v); err != nil {
		logger.Warn("characteristic write failed", "characteristic", name, "error", err)
		return false
	}
	return true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
