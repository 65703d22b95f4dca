package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	ingestion "property-monitor/internal/ingestion/application"
	"property-monitor/internal/observability/metrics"
	readings "property-monitor/internal/readings/domain"
)

const defaultRequestTimeout = 5 * time.Second

// Consumer subscribes to a readings topic and feeds batches through the same
// coordinator the HTTP boundary uses. Payloads are identical to the HTTP body.
type Consumer struct {
	client      mqtt.Client
	coordinator *ingestion.Coordinator
	topic       string
	timeout     time.Duration
	logger      *log.Logger
}

// ConsumerOption configures the consumer.
type ConsumerOption func(*Consumer)

// WithRequestTimeout bounds each ingestion triggered from a message.
func WithRequestTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewConsumer constructs a consumer over an established MQTT client.
func NewConsumer(client mqtt.Client, coordinator *ingestion.Coordinator, topic string, logger *log.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("mqtt consumer: nil client")
	}
	if coordinator == nil {
		return nil, errors.New("mqtt consumer: nil coordinator")
	}
	if topic == "" {
		return nil, errors.New("mqtt consumer: empty topic")
	}
	if logger == nil {
		logger = log.Default()
	}
	consumer := &Consumer{
		client:      client,
		coordinator: coordinator,
		topic:       topic,
		timeout:     defaultRequestTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(consumer)
	}
	return consumer, nil
}

type mqttPayload struct {
	DeviceID string                `json:"device_id"`
	APIKey   string                `json:"api_key"`
	Readings []readings.RawReading `json:"readings"`
}

// Start subscribes to the topic. Failed messages are logged and dropped;
// retry policy belongs to the reporting device.
func (c *Consumer) Start() error {
	if c == nil || c.client == nil {
		return errors.New("mqtt consumer: not initialized")
	}
	token := c.client.Subscribe(c.topic, 1, c.handleMessage)
	token.Wait()
	return token.Error()
}

func (c *Consumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var payload mqttPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		c.logger.Printf("mqtt ingest: invalid payload on %s: %v", msg.Topic(), err)
		metrics.IncMQTTMessage(metrics.ResultError)
		return
	}
	if payload.DeviceID == "" || payload.APIKey == "" {
		c.logger.Printf("mqtt ingest: missing device_id/api_key on %s", msg.Topic())
		metrics.IncMQTTMessage(metrics.ResultError)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.coordinator.Ingest(ctx, payload.DeviceID, payload.APIKey, payload.Readings)
	if err != nil {
		c.logger.Printf("mqtt ingest: device=%s rejected: %v", payload.DeviceID, err)
		metrics.IncMQTTMessage(metrics.ResultError)
		return
	}
	metrics.IncMQTTMessage(metrics.ResultSuccess)
	if len(result.Alerts) > 0 {
		c.logger.Printf("mqtt ingest: device=%s stored=%d alerts=%d", payload.DeviceID, result.Stored, len(result.Alerts))
	}
}
