package bus

import (
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	received := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		topic      string
		payload    string
		wantDevice string
		wantAction string
		wantSkip   bool
		wantErr    bool
	}{
		{
			name:       "zigbee action topic bare string",
			topic:      "zigbee2mqtt/0x0015/action",
			payload:    "single",
			wantDevice: "zigbee2mqtt_0x0015",
			wantAction: "single",
		},
		{
			name:       "zigbee action topic quoted string",
			topic:      "zigbee2mqtt/0x0015/action",
			payload:    `"double"`,
			wantDevice: "zigbee2mqtt_0x0015",
			wantAction: "double",
		},
		{
			name:       "zigbee action topic json object",
			topic:      "zigbee2mqtt/0x0015/action",
			payload:    `{"action":"hold"}`,
			wantDevice: "zigbee2mqtt_0x0015",
			wantAction: "hold",
		},
		{
			name:       "zigbee device topic with action field",
			topic:      "zigbee2mqtt/nursery_button",
			payload:    `{"action":"single","battery":87,"linkquality":120}`,
			wantDevice: "zigbee2mqtt_nursery_button",
			wantAction: "single",
		},
		{
			name:       "zigbee device topic with state field",
			topic:      "zigbee2mqtt/night_light",
			payload:    `{"state":"ON"}`,
			wantDevice: "zigbee2mqtt_night_light",
			wantAction: "state_on",
		},
		{
			name:       "zigbee device topic with contact sensor",
			topic:      "zigbee2mqtt/crib_door",
			payload:    `{"contact":false}`,
			wantDevice: "zigbee2mqtt_crib_door",
			wantAction: "contact_false",
		},
		{
			name:       "zigbee device topic with occupancy sensor",
			topic:      "zigbee2mqtt/nursery_motion",
			payload:    `{"occupancy":true}`,
			wantDevice: "zigbee2mqtt_nursery_motion",
			wantAction: "motion_true",
		},
		{
			name:       "zwave action topic",
			topic:      "zwave/button_3/action",
			payload:    "pressed",
			wantDevice: "zwave_button_3",
			wantAction: "pressed",
		},
		{
			name:       "custom topic",
			topic:      "babylog/kitchen_panel/feeding_start_left",
			payload:    `{}`,
			wantDevice: "custom_kitchen_panel",
			wantAction: "feeding_start_left",
		},
		{
			name:     "bridge chatter skipped",
			topic:    "zigbee2mqtt/bridge/state",
			payload:  `{"state":"online"}`,
			wantSkip: true,
		},
		{
			name:     "availability subtopic skipped",
			topic:    "zigbee2mqtt/0x0015/availability",
			payload:  "online",
			wantSkip: true,
		},
		{
			name:     "sensor report with nothing actionable skipped",
			topic:    "zigbee2mqtt/thermometer",
			payload:  `{"temperature":21.3,"humidity":40}`,
			wantSkip: true,
		},
		{
			name:     "foreign topic skipped",
			topic:    "homeassistant/sensor/config",
			payload:  `{}`,
			wantSkip: true,
		},
		{
			name:    "malformed json on device topic",
			topic:   "zigbee2mqtt/0x0015",
			payload: `{"action":`,
			wantErr: true,
		},
		{
			name:    "empty action payload",
			topic:   "zigbee2mqtt/0x0015/action",
			payload: "",
			wantErr: true,
		},
		{
			name:    "action object without action field",
			topic:   "zigbee2mqtt/0x0015/action",
			payload: `{"battery":90}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.topic, []byte(tt.payload), received)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode(%q, %q) = %+v, want error", tt.topic, tt.payload, msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q, %q): %v", tt.topic, tt.payload, err)
			}
			if tt.wantSkip {
				if msg != nil {
					t.Fatalf("Decode(%q) = %+v, want skip", tt.topic, msg)
				}
				return
			}
			if msg == nil {
				t.Fatalf("Decode(%q) skipped, want a trigger", tt.topic)
			}
			if msg.DeviceID != tt.wantDevice || msg.ButtonAction != tt.wantAction {
				t.Errorf("Decode(%q) = %s/%s, want %s/%s",
					tt.topic, msg.DeviceID, msg.ButtonAction, tt.wantDevice, tt.wantAction)
			}
			if !msg.Timestamp.Equal(received) {
				t.Errorf("timestamp = %v, want receipt time %v", msg.Timestamp, received)
			}
		})
	}
}

func TestDecodePayloadTimestampOverridesReceiptTime(t *testing.T) {
	received := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	explicit := time.Date(2026, 3, 14, 9, 58, 30, 0, time.UTC)

	msg, err := Decode("zigbee2mqtt/0x0015/action",
		[]byte(`{"action":"single","timestamp":"2026-03-14T09:58:30Z"}`), received)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !msg.Timestamp.Equal(explicit) {
		t.Errorf("timestamp = %v, want payload time %v", msg.Timestamp, explicit)
	}

	// Unix seconds work too.
	msg, err = Decode("babylog/panel/sleep_start",
		[]byte(`{"timestamp":1773482310}`), received)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := msg.Timestamp.Unix(); got != 1773482310 {
		t.Errorf("unix timestamp = %d, want 1773482310", got)
	}
}
