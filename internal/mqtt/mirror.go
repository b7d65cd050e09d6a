package mqtt

import (
	"log/slog"
	"time"

	"github.com/sweeney/bp-sensor/internal/bps"
)

// Mirror forwards every value the radio sends to a Publisher. Publish
// errors are logged and otherwise ignored.
type Mirror struct {
	Pub    Publisher
	Now    func() time.Time
	Logger *slog.Logger
}

func (m Mirror) OnRecord(peer string, r bps.Record) {
	if err := m.Pub.PublishRecord(peer, r); err != nil {
		m.logger().Warn("mqtt publish record failed", "error", err)
	}
}

func (m Mirror) OnBattery(peer string, level uint8) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	if err := m.Pub.PublishBattery(peer, level, now()); err != nil {
		m.logger().Warn("mqtt publish battery failed", "error", err)
	}
}

func (m Mirror) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
