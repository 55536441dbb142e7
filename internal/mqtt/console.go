package mqtt

import (
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Console is the client used by operator tools: it sends commands and
// follows the events and system topics of one BMS.
type Console struct {
	client paho.Client
	topics Topics
}

// NewConsole connects to the broker. onMessage receives every message on
// the events and system topics, including the retained system snapshot.
func NewConsole(o Options, onMessage func(topic string, payload []byte)) (*Console, error) {
	c := &Console{topics: o.Topics}

	handler := func(_ paho.Client, msg paho.Message) {
		onMessage(msg.Topic(), msg.Payload())
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(client paho.Client) {
			client.Subscribe(c.topics.Events, 0, handler)
			client.Subscribe(c.topics.System, 1, handler)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// Send publishes a command to the BMS.
func (c *Console) Send(cmd Command) error {
	payload, err := FormatCommand(cmd)
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}

	token := c.client.Publish(c.topics.Commands, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("send command: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Console) Close() {
	c.client.Disconnect(250)
}
