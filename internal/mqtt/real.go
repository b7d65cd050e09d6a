package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/bp-sensor/internal/bps"
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	ConnectTimeout time.Duration
	QueueSize      int // messages kept while the broker is unreachable
	Logger         *slog.Logger
}

// RealPublisher publishes to an actual MQTT broker. Measurements never block
// the caller: they are handed to the client, or queued while disconnected and
// replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	logger *slog.Logger

	mu        sync.Mutex
	queue     *offlineQueue
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher for the given broker. If the first
// connection does not succeed within the timeout, the publisher is still
// returned and keeps retrying in the background.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "bp-sensor"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	p := &RealPublisher{
		logger: o.Logger,
		queue:  newOfflineQueue(o.QueueSize, o.Logger),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		p.logger.Warn("mqtt broker not reachable yet, queueing", "broker", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	pending := p.queue.drainAll()
	p.mu.Unlock()

	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(pending) > 0 {
		p.logger.Info("mqtt replayed queued messages", "count", len(pending))
	}

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			c.Publish(TopicSystem, 1, false, payload)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", "error", err)
}

// send hands msg to the client, or queues it while disconnected.
func (p *RealPublisher) send(m queuedMsg) paho.Token {
	p.mu.Lock()
	if !p.connected {
		p.queue.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.client.Publish(m.topic, m.qos, m.retained, m.payload)
}

// PublishRecord sends a measurement. QoS 0, not retained, does not wait.
func (p *RealPublisher) PublishRecord(peer string, r bps.Record) error {
	payload, err := FormatRecord(peer, r)
	if err != nil {
		return fmt.Errorf("format record: %w", err)
	}
	p.send(queuedMsg{topic: TopicMeasurements, payload: payload})
	return nil
}

// PublishBattery sends a battery level. QoS 0, not retained, does not wait.
func (p *RealPublisher) PublishBattery(peer string, level uint8, at time.Time) error {
	payload, err := FormatBattery(peer, level, at)
	if err != nil {
		return fmt.Errorf("format battery: %w", err)
	}
	p.send(queuedMsg{topic: TopicMeasurements, payload: payload})
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - we want lifecycle events delivered
	token := p.send(queuedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
	if token == nil {
		return nil
	}
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Queued returns how many messages are waiting for the broker.
func (p *RealPublisher) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// Dropped returns how many messages the offline queue has overwritten.
func (p *RealPublisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.dropped
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
