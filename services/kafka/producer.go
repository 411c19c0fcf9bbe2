package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"learning-platform/logger"
)

const publishAttempts = 3

// Producer publishes JSON messages to any topic on one cluster.
type Producer struct {
	brokers []string
	writer  *kafka.Writer
}

// NewProducer creates a writer for brokers. Topics are chosen per message.
func NewProducer(brokers []string) *Producer {
	return &Producer{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

// EnsureTopics creates the topics that do not exist yet. Existing topics are
// left alone.
func (p *Producer) EnsureTopics(ctx context.Context, topics ...string) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var d kafka.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find kafka controller: %w", err)
	}
	ctrl, err := d.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := ctrl.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topics: %w", err)
	}
	logger.Info("Kafka topics ready: %v", topics)
	return nil
}

// Publish marshals value to JSON and writes it with key, retrying with
// exponential backoff.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kafka message: %w", err)
	}
	return p.publishRaw(ctx, topic, key, payload, nil)
}

func (p *Producer) publishRaw(ctx context.Context, topic, key string, payload []byte, headers []kafka.Header) error {
	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
	}

	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if lastErr = p.writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		logger.Warn("Kafka publish to %s attempt %d failed: %v", topic, attempt+1, lastErr)

		if attempt == publishAttempts-1 {
			break
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("publish to %s: %w", topic, lastErr)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
