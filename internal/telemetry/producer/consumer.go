package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"devicebound-auth/backend/internal/telemetry/domain"
)

// messageReader is the subset of *kafka.Reader used by KafkaConsumer.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer reads telemetry events written by KafkaProducer.
type KafkaConsumer struct {
	reader messageReader
	log    *zap.Logger
}

// NewKafkaConsumer joins groupID on topic. It returns nil when brokers or topic are empty.
func NewKafkaConsumer(brokers []string, topic, groupID string, log *zap.Logger) *KafkaConsumer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return newKafkaConsumer(reader, log)
}

func newKafkaConsumer(r messageReader, log *zap.Logger) *KafkaConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaConsumer{reader: r, log: log}
}

// Run decodes each message and passes it to handle until ctx is done.
// Undecodable messages and handler errors are logged and skipped.
func (c *KafkaConsumer) Run(ctx context.Context, handle func(context.Context, *domain.Event) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("telemetry: kafka read failed", zap.Error(err))
			continue
		}
		var event domain.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Warn("telemetry: dropping malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		if err := handle(ctx, &event); err != nil {
			c.log.Warn("telemetry: event handler failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}
}

// Close closes the Kafka reader. Safe to call on a nil consumer.
func (c *KafkaConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
