package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedLetter struct {
	topic string
	key   string
	value interface{}
}

type fakeDLQ struct {
	mu      sync.Mutex
	letters []recordedLetter
}

func (f *fakeDLQ) Publish(_ context.Context, topic, key string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.letters = append(f.letters, recordedLetter{topic: topic, key: key, value: value})
	return nil
}

func TestConsumer_HandleSuccess(t *testing.T) {
	dlq := &fakeDLQ{}
	var got []byte
	c := &Consumer{
		topic:   "learning.subscriptions",
		handler: func(_ context.Context, payload []byte) error { got = payload; return nil },
		dlq:     dlq,
	}

	ok := c.handle(context.Background(), kafka.Message{Topic: "learning.subscriptions", Value: []byte(`{"event":"x"}`)})

	assert.True(t, ok)
	assert.JSONEq(t, `{"event":"x"}`, string(got))
	assert.Empty(t, dlq.letters)
}

func TestConsumer_HandleFailureGoesToDLQ(t *testing.T) {
	dlq := &fakeDLQ{}
	c := &Consumer{
		topic:   "learning.subscriptions",
		handler: func(context.Context, []byte) error { return errors.New("smtp down") },
		dlq:     dlq,
	}

	ok := c.handle(context.Background(), kafka.Message{
		Topic:  "learning.subscriptions",
		Key:    []byte("alice"),
		Offset: 42,
		Value:  []byte(`{"event":"subscription.activated"}`),
	})

	assert.False(t, ok)
	require.Len(t, dlq.letters, 1)
	letter := dlq.letters[0]
	assert.Equal(t, "learning.subscriptions.dlq", letter.topic)
	assert.Equal(t, "alice", letter.key)

	dl, isLetter := letter.value.(DeadLetter)
	require.True(t, isLetter)
	assert.Equal(t, int64(42), dl.Offset)
	assert.Equal(t, "smtp down", dl.Error)
	assert.JSONEq(t, `{"event":"subscription.activated"}`, string(dl.Payload))
	assert.Empty(t, dl.RawPayload)
}

func TestConsumer_HandleFailureKeepsInvalidJSONRaw(t *testing.T) {
	dlq := &fakeDLQ{}
	c := &Consumer{
		handler: func(context.Context, []byte) error { return errors.New("bad payload") },
		dlq:     dlq,
	}

	c.handle(context.Background(), kafka.Message{Topic: "t", Value: []byte("not json")})

	require.Len(t, dlq.letters, 1)
	dl := dlq.letters[0].value.(DeadLetter)
	assert.Nil(t, dl.Payload)
	assert.Equal(t, "not json", dl.RawPayload)
}

func TestConsumer_HandleFailureWithoutDLQ(t *testing.T) {
	c := &Consumer{handler: func(context.Context, []byte) error { return errors.New("boom") }}
	assert.False(t, c.handle(context.Background(), kafka.Message{Topic: "t"}))
}
