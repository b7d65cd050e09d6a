package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Radio.Mode {
	case RadioSim, RadioBlueZ:
	default:
		errs = append(errs, fmt.Errorf("radio.mode: unknown mode %q (want %s or %s)", cfg.Radio.Mode, RadioSim, RadioBlueZ))
	}
	if cfg.Radio.AdvInterval <= 0 {
		errs = append(errs, errors.New("radio.adv_interval: must be positive"))
	}
	for i := 0; i < len(cfg.Radio.LocalName); i++ {
		if cfg.Radio.LocalName[i] > 0x7F {
			errs = append(errs, errors.New("radio.local_name: must contain ASCII characters only"))
			break
		}
	}
	if p := cfg.Radio.Peer; cfg.Radio.Mode == RadioSim && p.Enabled {
		if p.Address == "" {
			errs = append(errs, errors.New("radio.peer.address: required when the peer is enabled"))
		}
		if p.Session <= 0 {
			errs = append(errs, errors.New("radio.peer.session: must be positive"))
		}
	}

	if cfg.Loop.TimerPeriod <= 0 {
		errs = append(errs, errors.New("loop.timer_period: must be positive"))
	}
	if cfg.Loop.MaxSleep < 0 {
		errs = append(errs, errors.New("loop.max_sleep: must not be negative"))
	}
	if cfg.Loop.Heartbeat < 0 {
		errs = append(errs, errors.New("loop.heartbeat: must not be negative"))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", cfg.Log.Format))
	}

	if cfg.Debug.BufferSize <= 0 {
		errs = append(errs, errors.New("debug.buffer_size: must be positive"))
	}
	if cfg.Debug.FIFOSize <= 0 {
		errs = append(errs, errors.New("debug.fifo_size: must be positive"))
	}
	if cfg.Debug.Baud < 0 {
		errs = append(errs, errors.New("debug.baud: must not be negative"))
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.QueueSize <= 0 {
		errs = append(errs, errors.New("mqtt.queue_size: must be positive"))
	}

	if cfg.GPIO.Enabled {
		pins := map[int]string{}
		for _, p := range []struct {
			name string
			pin  int
		}{
			{"advertising", cfg.GPIO.Advertising},
			{"disconnect", cfg.GPIO.Disconnect},
			{"low_power", cfg.GPIO.LowPower},
		} {
			if p.pin < 0 {
				errs = append(errs, fmt.Errorf("gpio.%s: pin must not be negative", p.name))
				continue
			}
			if other, ok := pins[p.pin]; ok {
				errs = append(errs, fmt.Errorf("gpio.%s: pin %d already used by %s", p.name, p.pin, other))
				continue
			}
			pins[p.pin] = p.name
		}
	}

	return errors.Join(errs...)
}
