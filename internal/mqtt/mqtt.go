// Package mqtt connects the controller to the broker: it publishes state
// transitions and system events, and receives AFE measurements and operator
// commands.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/bms-controller/internal/bms"
)

// Topics holds the per-device topic names.
type Topics struct {
	Measurements string
	Commands     string
	Events       string
	System       string
}

// NewTopics returns the topic set for the BMS with the given name.
func NewTopics(name string) Topics {
	base := "bms/" + name
	return Topics{
		Measurements: base + "/afe/measurements",
		Commands:     base + "/cmd",
		Events:       base + "/events",
		System:       base + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a state transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(tr bms.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "MQTT_DISCONNECT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// EventStateChange is the event name used for every transition.
const EventStateChange = "STATE_CHANGE"

// Payload is the JSON body published on the events topic.
type Payload struct {
	BMS TransitionPayload `json:"bms"`
}

// TransitionPayload describes one state change.
type TransitionPayload struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Errors    []string `json:"errors"`
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(tr bms.Transition) ([]byte, error) {
	errs := tr.ErrorFlags.Names()
	if errs == nil {
		errs = []string{}
	}
	return json.Marshal(Payload{
		BMS: TransitionPayload{
			Timestamp: tr.Timestamp.UTC().Format(time.RFC3339),
			Event:     EventStateChange,
			From:      string(tr.From),
			To:        string(tr.To),
			Errors:    errs,
		},
	})
}

// SystemPayload is used for simple events (last will, reconnect) that don't
// carry a status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
