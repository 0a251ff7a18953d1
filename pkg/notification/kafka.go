package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// DefaultKafkaTopic is used when no topic is configured
const DefaultKafkaTopic = "tradepulse.events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every engine event as JSON, keyed by engine id so one
// engine's events stay ordered within a partition.
type Kafka struct {
	writer  messageWriter
	timeout time.Duration
	skip    map[engine.Kind]bool
	log     logger.Logger
}

// KafkaOption configures a Kafka observer
type KafkaOption func(*Kafka)

// WithKafkaTimeout bounds each publish
func WithKafkaTimeout(d time.Duration) KafkaOption {
	return func(k *Kafka) {
		k.timeout = d
	}
}

// WithoutKinds stops the given event kinds from being published
func WithoutKinds(kinds ...engine.Kind) KafkaOption {
	return func(k *Kafka) {
		for _, kind := range kinds {
			k.skip[kind] = true
		}
	}
}

// WithKafkaLogger sets the logger for publish failures
func WithKafkaLogger(log logger.Logger) KafkaOption {
	return func(k *Kafka) {
		k.log = log
	}
}

// NewKafka publishes engine events to topic on the given brokers
func NewKafka(brokers []string, topic string, opts ...KafkaOption) *Kafka {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafka(writer, opts...)
}

func newKafka(writer messageWriter, opts ...KafkaOption) *Kafka {
	k := &Kafka{
		writer:  writer,
		timeout: 5 * time.Second,
		skip:    make(map[engine.Kind]bool),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kafka) OnEvent(event engine.Event) {
	if k.skip[event.Kind] {
		return
	}

	value, err := json.Marshal(event)
	if err != nil {
		k.log.WithError(err).Errorf("notification/kafka: failed to encode %s event", event.Kind)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.EngineID),
		Value:   value,
		Time:    event.Time,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(event.Kind)}},
	})
	if err != nil {
		k.log.WithError(err).Errorf("notification/kafka: failed to publish %s event", event.Kind)
	}
}

// Close flushes and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
