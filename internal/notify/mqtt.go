package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

type MQTTConfig struct {
	// Notices are disabled when the broker is empty
	Broker   string `koanf:"broker"`
	ClientID string `koanf:"client_id"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// Notices for teacher T are published on <prefix>/T
	Prefix string        `koanf:"prefix"`
	QoS    byte          `koanf:"qos"`
	Wait   time.Duration `koanf:"wait"`
}

func (config *MQTTConfig) SetDefaults() {
	if config.ClientID == "" {
		config.ClientID = "timetabler-" + uuid.NewString()
	}
	if config.Prefix == "" {
		config.Prefix = "timetabler/notices"
	}
	if config.Wait == 0 {
		config.Wait = 5 * time.Second
	}
}

func (config MQTTConfig) Validate() error {
	if config.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2: %d", config.QoS)
	} else if strings.ContainsAny(config.Prefix, "+#") {
		return fmt.Errorf("mqtt prefix must not contain wildcards: %q", config.Prefix)
	}
	return nil
}

func (config MQTTConfig) Enabled() bool { return config.Broker != "" }

// Client is the subset of the paho client the notifier uses.
type Client interface {
	IsConnected() bool
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

var newMQTTClient = func(config MQTTConfig) (Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetUsername(config.Username).
		SetPassword(config.Password).
		SetConnectTimeout(config.Wait).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(config.Wait) {
		return nil, fmt.Errorf("connect to %s: timed out", config.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", config.Broker, err)
	}
	return client, nil
}

// MQTTNotifier publishes each notice as JSON on the teacher's topic.
type MQTTNotifier struct {
	client Client
	config MQTTConfig
}

func NewMQTTNotifier(config MQTTConfig) (*MQTTNotifier, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := newMQTTClient(config)
	if err != nil {
		return nil, err
	}
	return &MQTTNotifier{client: client, config: config}, nil
}

func (notifier *MQTTNotifier) Topic(teacher string) string {
	return notifier.config.Prefix + "/" + teacher
}

func (notifier *MQTTNotifier) Notify(ctx context.Context, notice Notice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	token := notifier.client.Publish(notifier.Topic(notice.Teacher), notifier.config.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish notice for %s: %w", notice.Teacher, ctx.Err())
	case <-time.After(notifier.config.Wait):
		return fmt.Errorf("publish notice for %s: timed out", notice.Teacher)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish notice for %s: %w", notice.Teacher, err)
	}
	return nil
}

func (notifier *MQTTNotifier) Close() {
	if notifier.client.IsConnected() {
		notifier.client.Disconnect(250)
	}
}
