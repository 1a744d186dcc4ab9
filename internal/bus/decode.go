package bus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Decode parses a raw bus message into a device trigger.
//
// Returns (nil, nil) for topics that are valid but carry no trigger
// (availability, link quality, bridge chatter, state payloads with no
// recognized field): these are silently skipped. A non-nil error means
// the payload was malformed for a recognized topic; the caller logs it
// and drops the message.
func Decode(topic string, payload []byte, receivedAt time.Time) (*Message, error) {
	parts := strings.Split(topic, "/")

	switch {
	case parts[0] == "zigbee2mqtt" && len(parts) >= 2:
		return decodeZigbee(topic, parts, payload, receivedAt)
	case parts[0] == "zwave" && len(parts) >= 3 && parts[len(parts)-1] == "action":
		return decodeAction(topic, "zwave_"+parts[1], payload, receivedAt)
	case parts[0] == "babylog" && len(parts) >= 3:
		msg := &Message{
			DeviceID:     "custom_" + parts[1],
			ButtonAction: parts[2],
			Timestamp:    receivedAt,
			RawTopic:     topic,
		}
		applyPayloadTimestamp(msg, payload)
		return msg, nil
	}
	return nil, nil
}

// decodeZigbee handles both the dedicated .../action topic and bare
// device topics whose JSON state may embed a trigger.
func decodeZigbee(topic string, parts []string, payload []byte, receivedAt time.Time) (*Message, error) {
	device := parts[1]
	if device == "bridge" {
		return nil, nil
	}
	deviceID := "zigbee2mqtt_" + device

	if len(parts) >= 3 {
		switch parts[2] {
		case "action":
			return decodeAction(topic, deviceID, payload, receivedAt)
		default:
			// availability, linkquality, set, get, ...
			return nil, nil
		}
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", topic, err)
	}

	msg := &Message{DeviceID: deviceID, Timestamp: receivedAt, RawTopic: topic}
	switch {
	case fields["action"] != nil:
		action, err := stringField(fields["action"])
		if err != nil || action == "" {
			return nil, fmt.Errorf("decode %s: bad action field", topic)
		}
		msg.ButtonAction = action
	case fields["state"] != nil:
		state, err := stringField(fields["state"])
		if err != nil || state == "" {
			return nil, fmt.Errorf("decode %s: bad state field", topic)
		}
		msg.ButtonAction = "state_" + strings.ToLower(state)
	case fields["contact"] != nil:
		msg.ButtonAction = "contact_" + boolLabel(fields["contact"])
	case fields["occupancy"] != nil:
		msg.ButtonAction = "motion_" + boolLabel(fields["occupancy"])
	default:
		// Sensor report with nothing actionable.
		return nil, nil
	}
	applyRawTimestamp(msg, fields["timestamp"])
	return msg, nil
}

// decodeAction parses a .../action topic. The payload is either a JSON
// object with an "action" field or the bare action string.
func decodeAction(topic, deviceID string, payload []byte, receivedAt time.Time) (*Message, error) {
	msg := &Message{DeviceID: deviceID, Timestamp: receivedAt, RawTopic: topic}

	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, fmt.Errorf("decode %s: empty payload", topic)
	}

	if !strings.HasPrefix(trimmed, "{") {
		msg.ButtonAction = strings.Trim(trimmed, `"`)
		return msg, nil
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", topic, err)
	}
	action, err := stringField(fields["action"])
	if err != nil || action == "" {
		return nil, fmt.Errorf("decode %s: missing action", topic)
	}
	msg.ButtonAction = action
	applyRawTimestamp(msg, fields["timestamp"])
	return msg, nil
}

// applyPayloadTimestamp overrides the receipt time with an explicit
// payload timestamp when the custom topic carries one.
func applyPayloadTimestamp(msg *Message, payload []byte) {
	fields := map[string]json.RawMessage{}
	if json.Unmarshal(payload, &fields) != nil {
		return
	}
	applyRawTimestamp(msg, fields["timestamp"])
}

// applyRawTimestamp accepts RFC3339 strings and unix-seconds numbers.
func applyRawTimestamp(msg *Message, raw json.RawMessage) {
	if raw == nil {
		return
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			msg.Timestamp = t.UTC()
		}
		return
	}
	var secs float64
	if json.Unmarshal(raw, &secs) == nil && secs > 0 {
		msg.Timestamp = time.Unix(int64(secs), 0).UTC()
	}
}

func stringField(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func boolLabel(raw json.RawMessage) string {
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return strconv.FormatBool(b)
	}
	return "unknown"
}
