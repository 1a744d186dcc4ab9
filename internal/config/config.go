// Package config loads daemon configuration from layered sources:
// built-in defaults, an optional YAML file, then BABYLOG_ environment
// variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment overrides, e.g.
// BABYLOG_MQTT_BROKER -> mqtt.broker.
const envPrefix = "BABYLOG_"

// MQTTConfig configures the bus connection.
type MQTTConfig struct {
	Broker   string   `koanf:"broker"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	ClientID string   `koanf:"client_id"`
	Topics   []string `koanf:"topics"`
}

// DatabaseConfig configures the SQLite event store.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// Config is the full daemon configuration.
type Config struct {
	HTTPAddr         string         `koanf:"http_addr"`
	Database         DatabaseConfig `koanf:"database"`
	MQTT             MQTTConfig     `koanf:"mqtt"`
	DebounceWindow   time.Duration  `koanf:"debounce_window"`
	SessionAutoClose bool           `koanf:"session_auto_close"`
	Timezone         string         `koanf:"timezone"`
	Log              LogConfig      `koanf:"log"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr: ":8099",
		Database: DatabaseConfig{
			Path: "/data/babylog.db",
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://core-mosquitto:1883",
			ClientID: "babylog",
			Topics: []string{
				"zigbee2mqtt/+/action",
				"zigbee2mqtt/+",
				"zwave/+/action",
				"babylog/+/+",
			},
		},
		DebounceWindow:   2 * time.Second,
		SessionAutoClose: true,
		Timezone:         "UTC",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration. path names a YAML file; an empty path or a
// missing file falls back to defaults plus environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	// BABYLOG_HTTP_ADDR -> http_addr, BABYLOG_MQTT_BROKER -> mqtt.broker.
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Topics may arrive as a comma-separated env string.
	if raw, ok := k.Get("mqtt.topics").(string); ok {
		var topics []string
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
		if err := k.Set("mqtt.topics", topics); err != nil {
			return nil, fmt.Errorf("set mqtt.topics: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must not be empty")
	}
	if len(c.MQTT.Topics) == 0 {
		return fmt.Errorf("mqtt.topics must not be empty")
	}
	if c.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// Location resolves the configured timezone. Validate has already
// checked it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// envTransform maps BABYLOG_MQTT_BROKER to mqtt.broker. Section
// prefixes become dotted paths; everything else stays a flat key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, section := range []string{"mqtt_", "database_", "log_"} {
		if strings.HasPrefix(key, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(key, section)
		}
	}
	return key
}
