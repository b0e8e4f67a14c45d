package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/pump-controller/internal/logger"
	"github.com/sweeney/pump-controller/internal/logic"
)

const (
	// DefaultBufferSize is the number of messages held while disconnected.
	DefaultBufferSize = 256

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int

	// OnConnectionChange, if set, is called with the new state whenever
	// the broker connection comes up or drops.
	OnConnectionChange func(connected bool)

	// Now is the clock for RECONNECTED and will messages. Defaults to time.Now.
	Now func() time.Time
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topic  string
	opts   Options

	mu            sync.Mutex
	buf           *ringBuffer
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: the client keeps retrying in the background and
// messages are buffered until it connects.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	o = withDefaults(o)
	p := newPublisher(nil, o)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: o.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warn().Str("broker", o.Broker).Msg("MQTT broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func withDefaults(o Options) Options {
	if o.ClientID == "" {
		o.ClientID = "pump-controller"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func newPublisher(client paho.Client, o Options) *RealPublisher {
	o = withDefaults(o)
	return &RealPublisher{
		client: client,
		topic:  Topic,
		opts:   o,
		buf:    newRingBuffer(o.BufferSize),
	}
}

// Publish sends a pump event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: p.topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if n := p.buf.len(); n > 0 {
		logger.Warn().Int("messages", n).Msg("Discarding buffered MQTT messages on close")
	}
	p.mu.Unlock()

	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		return nil
	}

	if err := p.publishLocked(msg); err != nil {
		p.buf.push(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) publishLocked(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// handleConnect replays buffered messages and announces a reconnect.
func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	reconnected := p.everConnected
	p.everConnected = true

	pending := p.buf.drainAll()
	for i, msg := range pending {
		if err := p.publishLocked(msg); err != nil {
			logger.Warn().Err(err).Int("remaining", len(pending)-i).Msg("MQTT replay interrupted")
			for _, m := range pending[i:] {
				p.buf.push(m)
			}
			break
		}
	}

	if reconnected {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.opts.Now(), Event: "RECONNECTED"})
		if err := p.publishLocked(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish RECONNECTED")
		}
	}
	p.mu.Unlock()

	logger.Info().Int("replayed", len(pending)).Bool("reconnect", reconnected).Msg("MQTT connected")
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}
}

func (p *RealPublisher) handleConnectionLost(err error) {
	logger.Warn().Err(err).Msg("MQTT connection lost")
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}
