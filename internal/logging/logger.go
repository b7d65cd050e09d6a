// Package logging builds the daemon's slog logger. Output goes to whatever
// writer the caller supplies, normally the debug UART channel.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const appName = "bp-sensor"

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (allowed: debug, info, warn, error)", s)
	}
}

// New returns a logger writing to w. Format "json" selects slog's JSON
// handler; anything else is tint's text output, uncoloured since the debug
// channel is usually a serial line.
func New(w io.Writer, level, format, version string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if format == "json" {
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
		return slog.New(h).With("app", appName, "version", version), nil
	}

	h := tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
		NoColor:    true,
	})
	return slog.New(h).With("app", appName), nil
}
