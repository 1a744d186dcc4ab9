package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":8099" {
		t.Errorf("http_addr = %q, want :8099", cfg.HTTPAddr)
	}
	if cfg.Database.Path != "/data/babylog.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker != "tcp://core-mosquitto:1883" {
		t.Errorf("mqtt.broker = %q", cfg.MQTT.Broker)
	}
	if len(cfg.MQTT.Topics) != 4 {
		t.Errorf("mqtt.topics = %v, want 4 defaults", cfg.MQTT.Topics)
	}
	if cfg.DebounceWindow != 2*time.Second {
		t.Errorf("debounce_window = %v, want 2s", cfg.DebounceWindow)
	}
	if !cfg.SessionAutoClose {
		t.Error("session_auto_close should default to true")
	}
	if cfg.Timezone != "UTC" || cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("defaults = tz %q level %q format %q", cfg.Timezone, cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
http_addr: ":9000"
database:
  path: /tmp/test.db
mqtt:
  broker: tcp://localhost:1883
  topics:
    - zigbee2mqtt/+/action
debounce_window: 5s
session_auto_close: false
timezone: Europe/London
log:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("http_addr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.DebounceWindow != 5*time.Second {
		t.Errorf("debounce_window = %v, want 5s", cfg.DebounceWindow)
	}
	if cfg.SessionAutoClose {
		t.Error("session_auto_close should be false")
	}
	if len(cfg.MQTT.Topics) != 1 {
		t.Errorf("mqtt.topics = %v, want the single configured topic", cfg.MQTT.Topics)
	}
	if cfg.Timezone != "Europe/London" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	// Unset keys keep their defaults.
	if cfg.MQTT.ClientID != "babylog" {
		t.Errorf("mqtt.client_id = %q, want default babylog", cfg.MQTT.ClientID)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http_addr: \":9000\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BABYLOG_HTTP_ADDR", ":7777")
	t.Setenv("BABYLOG_MQTT_BROKER", "tcp://10.0.0.5:1883")
	t.Setenv("BABYLOG_MQTT_TOPICS", "zigbee2mqtt/+/action, babylog/+/+")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":7777" {
		t.Errorf("http_addr = %q, env should win over file", cfg.HTTPAddr)
	}
	if cfg.MQTT.Broker != "tcp://10.0.0.5:1883" {
		t.Errorf("mqtt.broker = %q", cfg.MQTT.Broker)
	}
	if len(cfg.MQTT.Topics) != 2 || cfg.MQTT.Topics[1] != "babylog/+/+" {
		t.Errorf("mqtt.topics = %v, want the two comma-separated values", cfg.MQTT.Topics)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load with missing file: %v", err)
	}
	if cfg.HTTPAddr != ":8099" {
		t.Errorf("http_addr = %q, want default", cfg.HTTPAddr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"empty broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"no topics", func(c *Config) { c.MQTT.Topics = nil }},
		{"negative debounce", func(c *Config) { c.DebounceWindow = -time.Second }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := defaults()
	cfg.Timezone = "Europe/London"
	if got := cfg.Location().String(); got != "Europe/London" {
		t.Errorf("location = %q", got)
	}
}
