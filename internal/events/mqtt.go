package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kozaktomas/face-attendance/internal/config"
)

// MQTTSink publishes events as JSON to an MQTT topic.
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

// NewMQTTSink connects to the configured broker.
func NewMQTTSink(cfg config.MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Printf("MQTT: connected to broker %s", cfg.Broker)

	return &MQTTSink{client: client, topic: cfg.Topic}, nil
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

func (s *MQTTSink) Write(ctx context.Context, event RecognitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	token := s.client.Publish(s.topic, 1, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing to %s: %w", s.topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", s.topic, ctx.Err())
	}
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	log.Println("MQTT: disconnected")
	return nil
}
