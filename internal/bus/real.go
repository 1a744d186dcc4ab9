package bus

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// RealSource subscribes to an actual MQTT broker.
type RealSource struct {
	client paho.Client
	log    *zap.Logger

	topics  []string
	handler Handler
}

// RealSourceConfig holds broker connection settings.
type RealSourceConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// OnConnectionChange is invoked on connect and on connection loss,
	// for health reporting. Optional.
	OnConnectionChange func(connected bool)
}

// NewRealSource creates a source connected to the given broker. The
// client auto-reconnects with backoff; subscriptions are re-established
// on every (re)connect, so device automation resumes by itself after an
// outage.
func NewRealSource(cfg RealSourceConfig, log *zap.Logger) (*RealSource, error) {
	s := &RealSource{log: log}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(5 * time.Minute)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(c paho.Client) {
		log.Info("connected to mqtt broker", zap.String("broker", cfg.Broker))
		if cfg.OnConnectionChange != nil {
			cfg.OnConnectionChange(true)
		}
		// Re-subscribe: subscriptions do not survive a clean-session
		// reconnect.
		s.resubscribe()
	})
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		log.Warn("mqtt connection lost, device automation unavailable until reconnect",
			zap.Error(err))
		if cfg.OnConnectionChange != nil {
			cfg.OnConnectionChange(false)
		}
	})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// ConnectRetry keeps trying in the background; not fatal.
		log.Warn("mqtt broker not reachable yet, retrying in background",
			zap.String("broker", cfg.Broker))
		return s, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

// Subscribe registers the handler for the given topic filters.
func (s *RealSource) Subscribe(topics []string, h Handler) error {
	s.topics = topics
	s.handler = h
	if s.client.IsConnected() {
		s.resubscribe()
	}
	return nil
}

func (s *RealSource) resubscribe() {
	if s.handler == nil {
		return
	}
	for _, topic := range s.topics {
		token := s.client.Subscribe(topic, 0, func(c paho.Client, m paho.Message) {
			s.handler(m.Topic(), m.Payload(), time.Now().UTC())
		})
		if !token.WaitTimeout(5 * time.Second) {
			s.log.Warn("subscribe timeout", zap.String("topic", topic))
			continue
		}
		if err := token.Error(); err != nil {
			s.log.Error("subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (s *RealSource) IsConnected() bool {
	return s.client.IsConnected()
}

// Close disconnects from the broker.
func (s *RealSource) Close() error {
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}
