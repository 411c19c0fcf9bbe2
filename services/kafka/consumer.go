package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"learning-platform/logger"
)

// DLQSuffix is appended to a topic name to form its dead-letter topic.
const DLQSuffix = ".dlq"

// Handler processes one message payload.
type Handler func(ctx context.Context, payload []byte) error

// deadLetterWriter is the part of Producer the consumer needs.
type deadLetterWriter interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// DeadLetter wraps a message the handler could not process.
type DeadLetter struct {
	OriginalTopic string          `json:"original_topic"`
	Partition     int             `json:"partition"`
	Offset        int64           `json:"offset"`
	Key           string          `json:"key"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RawPayload    string          `json:"raw_payload,omitempty"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// ConsumerConfig selects the topic and consumer group to read.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads a topic in a consumer group and hands every message to a
// Handler. Failed messages go to the topic's dead-letter topic and are
// committed so the group keeps moving.
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	handler Handler
	dlq     deadLetterWriter
}

func NewConsumer(cfg ConsumerConfig, handler Handler, dlq *Producer) *Consumer {
	c := &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.GroupID,
			StartOffset:    kafka.FirstOffset,
			MaxBytes:       10e6,
			SessionTimeout: 20 * time.Second,
			ReadBackoffMin: 100 * time.Millisecond,
			ReadBackoffMax: time.Second,
		}),
		topic:   cfg.Topic,
		handler: handler,
	}
	if dlq != nil {
		c.dlq = dlq
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	logger.Info("Kafka consumer started. Topic=%s", c.topic)
	defer logger.Info("Kafka consumer stopped. Topic=%s", c.topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("Kafka fetch failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error("Kafka commit failed at offset %d: %v", msg.Offset, err)
		}
	}
}

// handle runs the handler and reports whether it succeeded. Failures are
// forwarded to the dead-letter topic.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	err := c.handler(ctx, msg.Value)
	if err == nil {
		return true
	}
	logger.Error("Kafka message %s/%d@%d failed: %v", msg.Topic, msg.Partition, msg.Offset, err)

	if c.dlq == nil {
		return false
	}
	letter := DeadLetter{
		OriginalTopic: msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Key:           string(msg.Key),
		Error:         err.Error(),
		FailedAt:      time.Now().UTC(),
	}
	if json.Valid(msg.Value) {
		letter.Payload = msg.Value
	} else {
		letter.RawPayload = string(msg.Value)
	}
	if dlqErr := c.dlq.Publish(ctx, msg.Topic+DLQSuffix, string(msg.Key), letter); dlqErr != nil && !errors.Is(dlqErr, context.Canceled) {
		logger.Error("Failed to forward message to DLQ: %v", dlqErr)
	}
	return false
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
