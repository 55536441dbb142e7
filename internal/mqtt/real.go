package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/bms-controller/internal/bms"
	"github.com/sweeney/bms-controller/internal/frontend"
)

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics

	// OutboxSize is the number of messages kept while disconnected.
	OutboxSize int
}

// Handlers receive inbound messages. Either may be nil.
// They run on the paho callback goroutine and must not block.
type Handlers struct {
	Measurements func(frontend.Measurements)
	Command      func(Command)
}

// RealPublisher publishes to an actual MQTT broker and dispatches the
// subscribed topics to Handlers.
type RealPublisher struct {
	client   paho.Client
	topics   Topics
	handlers Handlers

	mu        sync.Mutex
	outbox    *outbox
	replaying bool
}

// NewRealPublisher connects to the broker. The last will marks the device
// as shut down if the connection drops without a clean Close.
func NewRealPublisher(o Options, h Handlers) (*RealPublisher, error) {
	p := &RealPublisher{
		topics:   o.Topics,
		handlers: h,
		outbox:   newOutbox(o.OutboxSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetWill(o.Topics.System, string(will), 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect runs after every (re)connect: subscriptions are not persisted
// across clean sessions, so they are renewed here before the outbox replays.
func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected")

	if p.handlers.Measurements != nil {
		c.Subscribe(p.topics.Measurements, 0, p.onMeasurements)
	}
	if p.handlers.Command != nil {
		c.Subscribe(p.topics.Commands, 1, p.onCommand)
	}

	p.replay(func(m outboxMsg) {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	})
}

// replay publishes the outbox oldest first. Messages sent while it runs are
// queued behind the buffered ones and picked up by the next round.
func (p *RealPublisher) replay(publish func(outboxMsg)) {
	for {
		p.mu.Lock()
		pending := p.outbox.drain()
		if len(pending) == 0 {
			p.replaying = false
			p.mu.Unlock()
			return
		}
		p.replaying = true
		p.mu.Unlock()

		log.Printf("mqtt: replaying %d buffered messages", len(pending))
		for _, m := range pending {
			publish(m)
		}
	}
}

// enqueue buffers msg when the connection is down or older messages still
// wait to be replayed. It reports whether msg was buffered.
func (p *RealPublisher) enqueue(msg outboxMsg, open bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if open && !p.replaying && p.outbox.len() == 0 {
		return false
	}
	p.outbox.push(msg)
	return true
}

func (p *RealPublisher) onMeasurements(_ paho.Client, msg paho.Message) {
	m, err := frontend.DecodeMeasurements(msg.Payload(), time.Now())
	if err != nil {
		log.Printf("mqtt: dropping measurements: %v", err)
		return
	}
	p.handlers.Measurements(m)
}

func (p *RealPublisher) onCommand(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Printf("mqtt: dropping command: %v", err)
		return
	}
	p.handlers.Command(cmd)
}

// Publish sends a state transition to the MQTT broker.
func (p *RealPublisher) Publish(tr bms.Transition) error {
	payload, err := FormatPayload(tr)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(p.topics.Events, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(p.topics.System, 1, event.Retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	msg := outboxMsg{topic: topic, payload: payload, qos: qos, retained: retained}
	if p.enqueue(msg, p.client.IsConnectionOpen()) {
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
