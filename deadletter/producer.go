package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/models"
)

// Publisher fans dead letters out to operators' tooling.
type Publisher interface {
	Publish(ctx context.Context, entry *models.DeadLetter) error
	Close() error
}

// NewPublisher returns a Kafka producer when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(appConfig *config.Config, logger *zap.Logger) Publisher {
	if len(appConfig.Kafka.Brokers) == 0 {
		return noopPublisher{}
	}
	return NewProducer(appConfig.Kafka.Brokers, appConfig.Kafka.DeadLetterTopic, logger)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *models.DeadLetter) error { return nil }
func (noopPublisher) Close() error                                      { return nil }

type Producer struct {
	w      *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	logger = logger.Named("deadletter.kafka")
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			BatchTimeout: 50 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Error("failed to deliver dead letters", zap.Int("count", len(messages)), zap.Error(err))
				}
			},
		},
		logger: logger,
	}
}

// Publish keys messages by order ref so one order's entries stay ordered.
func (p *Producer) Publish(ctx context.Context, entry *models.DeadLetter) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	key := entry.OrderRef
	if key == "" {
		key = entry.DiscountCode
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  entry.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(entry.Kind)},
		},
	})
}

// Close flushes buffered messages.
func (p *Producer) Close() error {
	return p.w.Close()
}
