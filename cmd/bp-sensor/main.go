// Command bp-sensor runs the blood pressure sensor control loop and mirrors
// its output to MQTT and an HTTP status page.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/bp-sensor/internal/config"
	"github.com/sweeney/bp-sensor/internal/core"
	"github.com/sweeney/bp-sensor/internal/debugout"
	"github.com/sweeney/bp-sensor/internal/gpio"
	"github.com/sweeney/bp-sensor/internal/irq"
	"github.com/sweeney/bp-sensor/internal/logging"
	"github.com/sweeney/bp-sensor/internal/logic"
	"github.com/sweeney/bp-sensor/internal/mqtt"
	"github.com/sweeney/bp-sensor/internal/radio"
	"github.com/sweeney/bp-sensor/internal/status"
	"github.com/sweeney/bp-sensor/internal/store"
	"github.com/sweeney/bp-sensor/internal/timer"
	"github.com/sweeney/bp-sensor/internal/web"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bp-sensor",
		Short: "BLE blood pressure sensor control loop",
		Long: `Runs the blood pressure sensor firmware loop on a Linux host.

The radio is either a simulated peripheral with a scripted central (sim) or
the host Bluetooth adapter (bluez). Measurements and lifecycle events are
mirrored to MQTT, and the loop state is served over HTTP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCommand,
	}

	cmd.Flags().StringP("config", "c", "", "YAML config file (defaults apply when empty)")
	cmd.Flags().String("radio", "", "Radio mode override (sim, bluez)")
	cmd.Flags().String("http", "", `HTTP status address override ("off" disables)`)
	cmd.Flags().String("broker", "", `MQTT broker override ("off" disables)`)
	cmd.Flags().Bool("print-config", false, "Print the effective config and exit")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if printCfg, _ := cmd.Flags().GetBool("print-config"); printCfg {
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	return run(cfg)
}

// applyOverrides copies explicitly set flags over the loaded config.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("radio") {
		cfg.Radio.Mode, _ = flags.GetString("radio")
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = offToEmpty(flags.GetString("http"))
	}
	if flags.Changed("broker") {
		cfg.MQTT.Broker = offToEmpty(flags.GetString("broker"))
	}
}

func offToEmpty(v string, _ error) string {
	if v == "off" {
		return ""
	}
	return v
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cpu := irq.New(cfg.Loop.MaxSleep)

	// Debug UART: every log line goes through it.
	var sink io.Writer = os.Stderr
	var sinkErr error
	if cfg.Debug.Port != "" {
		port, err := debugout.OpenSerial(cfg.Debug.Port, cfg.Debug.Baud)
		if err != nil {
			sinkErr = err
		} else {
			defer port.Close()
			sink = port
		}
	}
	baud := cfg.Debug.Baud
	if cfg.Debug.Port == "" || sinkErr != nil {
		baud = 0
	}
	dbg := debugout.New(sink, debugout.Options{
		BufferSize: cfg.Debug.BufferSize,
		FIFOSize:   cfg.Debug.FIFOSize,
		Baud:       baud,
		OnDrained:  cpu.Raise,
	})
	dbgCtx, stopDbg := context.WithCancel(context.Background())
	dbgDone := make(chan struct{})
	go func() {
		dbg.Run(dbgCtx)
		close(dbgDone)
	}()
	defer func() {
		stopDbg()
		<-dbgDone
		dbg.Flush(time.Second)
	}()

	logger, err := logging.New(dbg, cfg.Log.Level, cfg.Log.Format, version)
	if err != nil {
		return err
	}
	if sinkErr != nil {
		logger.Warn("debug uart unavailable, using stderr", "error", sinkErr)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Radio:         cfg.Radio.Mode,
		TimerPeriodMs: cfg.Loop.TimerPeriod.Milliseconds(),
		HeartbeatMs:   cfg.Loop.Heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
		DebugPort:     cfg.Debug.Port,
		Database:      cfg.Store.Path,
	})

	// MQTT is optional: without a broker nothing is mirrored.
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	observers := radio.Observers{tracker}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			QueueSize:      cfg.MQTT.QueueSize,
			Logger:         logger,
		})
		if err != nil {
			logger.Warn("mqtt disabled", "error", err)
		} else {
			defer p.Close()
			publisher, mqttStatus = p, p
			observers = append(observers, mqtt.Mirror{Pub: p, Logger: logger})
		}
	}

	stack, closeStack, err := newStack(ctx, cfg, cpu, observers, logger)
	if err != nil {
		return err
	}
	defer closeStack()

	leds, closeLEDs := newIndicators(cfg.GPIO, logger)
	defer closeLEDs()

	ctrl := core.New(core.Deps{
		Stack:      stack,
		CPU:        cpu,
		Output:     dbg,
		Indicators: leds,
		Logger:     logger,
	})
	_ = ctrl.Start()

	src := timer.NewSource(cpu, cfg.Loop.TimerPeriod)
	go src.Run(ctx, ctrl.OnTimerTick)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	tracker.Update(ctrl.Snapshot())
	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			logger.Warn("failed to publish startup event", "error", err)
		}
	}

	logger.Info("started",
		"radio", cfg.Radio.Mode,
		"timer_period", cfg.Loop.TimerPeriod,
		"heartbeat", cfg.Loop.Heartbeat,
		"broker", cfg.MQTT.Broker,
	)

	// A signal must also wake a sleeping loop.
	raw := make(chan os.Signal, 1)
	signal.Notify(raw, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(raw)
	sig := make(chan os.Signal, 1)
	go func() {
		select {
		case s := <-raw:
			sig <- s
			cpu.Raise()
		case <-ctx.Done():
		}
	}()

	err = runLoop(ctrl, publisher, mqttStatus, tracker, dbg, cfg.Loop.Heartbeat, time.Now, sig, logger)
	cancel()
	return err
}

// newStack builds the radio stack for cfg.Radio.Mode. The returned func
// releases whatever the stack holds.
func newStack(ctx context.Context, cfg *config.Config, cpu *irq.CPU, obs radio.Observer, logger *slog.Logger) (radio.Stack, func(), error) {
	switch cfg.Radio.Mode {
	case config.RadioBlueZ:
		return radio.NewBlueZStack(radio.BlueZOptions{
			LocalName:   cfg.Radio.LocalName,
			AdvInterval: cfg.Radio.AdvInterval,
			UserID:      cfg.Radio.UserID,
			Observer:    obs,
			Wake:        cpu.Raise,
			Logger:      logger,
		}), func() {}, nil

	case config.RadioSim:
		opts := radio.SimOptions{
			Observer: obs,
			Wake:     cpu.Raise,
			UserID:   cfg.Radio.UserID,
		}
		closeFn := func() {}
		if cfg.Store.Path != "" {
			db, err := store.Open(cfg.Store.Path)
			if err != nil {
				logger.Warn("bond store unavailable, bonds kept in memory", "error", err)
			} else {
				opts.Store = db
				closeFn = func() { _ = db.Close() }
			}
		}
		sim := radio.NewSimStack(opts)
		if p := cfg.Radio.Peer; p.Enabled {
			go sim.RunPeer(ctx, radio.PeerScript{
				Address:      p.Address,
				ConnectAfter: p.ConnectAfter,
				Session:      p.Session,
				Flags:        peerFlags(p),
				Battery:      p.Battery,
			})
		}
		return sim, closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown radio mode %q", cfg.Radio.Mode)
}

func peerFlags(p config.PeerConfig) logic.NotifyFlags {
	var f logic.NotifyFlags
	if p.Notify {
		f |= logic.FlagNotify
	}
	if p.Indicate {
		f |= logic.FlagIndicate
	}
	return f
}

// newIndicators claims the LED lines. Any failure leaves that LED unset;
// the loop runs without it.
func newIndicators(cfg config.GPIOConfig, logger *slog.Logger) (core.Indicators, func()) {
	var leds core.Indicators
	if !cfg.Enabled {
		return leds, func() {}
	}

	bank, err := gpio.NewRealBank(cfg.Chip, cfg.ActiveLow)
	if err != nil {
		logger.Warn("gpio unavailable, running without indicators", "error", err)
		return leds, func() {}
	}

	claim := func(name string, pin int) core.Indicator {
		ind, err := bank.Output(name, pin)
		if err != nil {
			logger.Warn("indicator unavailable", "indicator", name, "pin", pin, "error", err)
			return nil
		}
		return ind
	}
	leds.Advertising = claim("advertising", cfg.Advertising)
	leds.Disconnect = claim("disconnect", cfg.Disconnect)
	leds.LowPower = claim("low_power", cfg.LowPower)

	return leds, func() { _ = bank.Close() }
}

// controlLoop is the part of core.Controller the run loop drives.
type controlLoop interface {
	Step()
	Snapshot() core.Snapshot
}

// debugStats is the part of debugout.Channel shown on the status page.
type debugStats interface {
	Depths() (buffered, fifo int)
	Dropped() uint64
	Sent() uint64
}

// runLoop steps the controller until a signal arrives. Nothing here logs per
// iteration: debug output keeps the UART busy, and a busy UART vetoes deep
// sleep.
func runLoop(ctrl controlLoop, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, debug debugStats, heartbeat time.Duration, now func() time.Time, sig <-chan os.Signal, logger *slog.Logger) error {
	hb := logic.NewHeartbeat(now())

	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String())
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			refresh(ctrl, mqttStatus, tracker, debug)
			if publisher != nil {
				event := mqtt.SystemEvent{
					Timestamp:  now(),
					Event:      "SHUTDOWN",
					Reason:     signalName,
					Retained:   true,
					RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName),
				}
				if err := publisher.PublishSystem(event); err != nil {
					logger.Warn("failed to publish shutdown event", "error", err)
				}
			}
			return nil
		default:
		}

		ctrl.Step()
		snap := refresh(ctrl, mqttStatus, tracker, debug)

		if hbData := hb.Check(now(), heartbeat, snap.Counts); hbData != nil {
			logger.Info("heartbeat",
				"uptime", hbData.Uptime.Truncate(time.Second),
				"iterations", hbData.Counts.Iterations,
				"sleep_deep", hbData.Counts.SleepDeep,
				"reports", hbData.Counts.Reports,
			)
			if publisher != nil {
				event := mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(event); err != nil {
					logger.Warn("heartbeat publish error", "error", err)
				}
			}
		}
	}
}

// refresh copies loop, MQTT and debug channel state into the tracker.
func refresh(ctrl controlLoop, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, debug debugStats) core.Snapshot {
	snap := ctrl.Snapshot()
	tracker.Update(snap)
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
		if q, ok := mqttStatus.(mqtt.QueueStatus); ok {
			tracker.SetMQTTQueue(q.Queued(), q.Dropped())
		}
	}
	if debug != nil {
		buffered, fifo := debug.Depths()
		tracker.SetDebug(status.Debug{
			Buffered: buffered,
			FIFO:     fifo,
			Dropped:  debug.Dropped(),
			Sent:     debug.Sent(),
		})
	}
	return snap
}
