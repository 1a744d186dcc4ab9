// Package bus subscribes to the MQTT message bus and turns device
// messages into care events. Sources are abstracted for testing.
// Decode failures are logged and dropped, never fatal to the listener.
package bus

import "time"

// Default topic subscriptions: Zigbee2MQTT button actions and device
// state, Z-Wave actions, and the tracker's own custom topic family.
var DefaultTopics = []string{
	"zigbee2mqtt/+/action",
	"zigbee2mqtt/+",
	"zwave/+/action",
	"babylog/+/+",
}

// Message is one decoded device trigger.
type Message struct {
	DeviceID     string
	ButtonAction string
	Timestamp    time.Time // receipt time when the payload carried none
	RawTopic     string
}

// Handler receives every raw message from a source.
type Handler func(topic string, payload []byte, receivedAt time.Time)

// Source is a subscription to the outside world. Implementations must
// keep delivering after transport reconnects.
type Source interface {
	// Subscribe registers the handler for the given topic filters.
	Subscribe(topics []string, h Handler) error

	// IsConnected reports whether the transport is currently up.
	IsConnected() bool

	// Close tears down the subscription.
	Close() error
}
