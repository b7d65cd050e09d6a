// Package config loads the daemon configuration from YAML. Every field has a
// default, so an empty file (or no file) yields a runnable simulation setup.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Radio modes.
const (
	RadioSim   = "sim"
	RadioBlueZ = "bluez"
)

type Config struct {
	Radio RadioConfig `yaml:"radio"`
	Loop  LoopConfig  `yaml:"loop"`
	Log   LogConfig   `yaml:"log"`
	Debug DebugConfig `yaml:"debug"`
	Store StoreConfig `yaml:"store"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	HTTP  HTTPConfig  `yaml:"http"`
	GPIO  GPIOConfig  `yaml:"gpio"`
}

// ---- RADIO ----

type RadioConfig struct {
	Mode        string        `yaml:"mode" default:"sim"`
	LocalName   string        `yaml:"local_name" default:"BP Sensor"`
	AdvInterval time.Duration `yaml:"adv_interval" default:"100ms"`
	UserID      uint8         `yaml:"user_id" default:"1"`
	Peer        PeerConfig    `yaml:"peer"`
}

// PeerConfig scripts the simulated central in sim mode.
type PeerConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	Address      string        `yaml:"address" default:"sim:c0:ff:ee:00:00:01"`
	ConnectAfter time.Duration `yaml:"connect_after" default:"5s"`
	Session      time.Duration `yaml:"session" default:"1m"`
	Indicate     bool          `yaml:"indicate" default:"true"`
	Notify       bool          `yaml:"notify"`
	Battery      bool          `yaml:"battery" default:"true"`
}

// ---- LOOP ----

type LoopConfig struct {
	TimerPeriod time.Duration `yaml:"timer_period" default:"1s"`
	MaxSleep    time.Duration `yaml:"max_sleep" default:"5s"`
	Heartbeat   time.Duration `yaml:"heartbeat" default:"15m"`
}

// ---- LOGGING / DEBUG UART ----

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
}

type DebugConfig struct {
	Port       string `yaml:"port"` // serial device; empty writes to stderr
	Baud       int    `yaml:"baud" default:"115200"`
	BufferSize int    `yaml:"buffer_size" default:"512"`
	FIFOSize   int    `yaml:"fifo_size" default:"8"`
}

// ---- STORAGE ----

type StoreConfig struct {
	Path string `yaml:"path" default:"bp-sensor.db"` // empty keeps bonds in memory
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker         string        `yaml:"broker" default:"tcp://192.168.1.200:1883"` // empty disables
	ClientID       string        `yaml:"client_id" default:"bp-sensor"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	QueueSize      int           `yaml:"queue_size" default:"100"`
}

// ---- HTTP ----

type HTTPConfig struct {
	Addr string `yaml:"addr" default:":80"` // empty disables
}

// ---- GPIO ----

type GPIOConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Chip        string `yaml:"chip" default:"gpiochip0"`
	ActiveLow   bool   `yaml:"active_low"`
	Advertising int    `yaml:"advertising" default:"17"`
	Disconnect  int    `yaml:"disconnect" default:"27"`
	LowPower    int    `yaml:"low_power" default:"22"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
