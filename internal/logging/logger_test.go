package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "text", "dev")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("radio stack started", "link", "STOPPED")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "radio stack started")
	assert.Contains(t, out, "link=STOPPED")
	assert.Contains(t, out, "app=bp-sensor")
	assert.NotContains(t, out, "\x1b[", "debug channel output must be uncoloured")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "json", "1.2.3")
	require.NoError(t, err)

	logger.Debug("stack event", "event", "LINK_LOST")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "stack event", rec["msg"])
	assert.Equal(t, "LINK_LOST", rec["event"])
	assert.Equal(t, "1.2.3", rec["version"])
	assert.Equal(t, "DEBUG", rec["level"])
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "text", "dev")
	assert.Error(t, err)
}
