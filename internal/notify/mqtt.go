package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"estatecore/pkg/domain"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// DialMQTT connects to the broker.
func DialMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return client, nil
}

// MQTTNotifier publishes each notification on <prefix>/partners/<partnerID>.
type MQTTNotifier struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewMQTTNotifier(client mqtt.Client, prefix string, qos byte) *MQTTNotifier {
	if prefix == "" {
		prefix = "estatecore"
	}
	return &MQTTNotifier{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos, timeout: 5 * time.Second}
}

// Topic returns the topic for a partner.
func (m *MQTTNotifier) Topic(partnerID string) string {
	return m.prefix + "/partners/" + partnerID
}

func (m *MQTTNotifier) Notify(ctx context.Context, partner domain.Partner, n domain.Notification) error {
	payload, err := encode(partner, n)
	if err != nil {
		return err
	}
	topic := m.Topic(partner.ID)
	token := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("publish to %s: %w", topic, errors.New("timed out"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
