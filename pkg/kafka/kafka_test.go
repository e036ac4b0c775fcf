package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/photo-payments/pkg/logger"
)

func TestWithDefaultHeaders(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("берёт идентификаторы из контекста", func(t *testing.T) {
		ctx := logger.NewContextWithIDs(context.Background(), "trace-1", "corr-1")
		msg := &Message{Topic: TopicPaymentEvents}

		withDefaultHeaders(ctx, msg, now)

		assert.Equal(t, "trace-1", msg.Headers[HeaderTraceID])
		assert.Equal(t, "corr-1", msg.Headers[HeaderCorrelationID])
		assert.Equal(t, "2026-01-02T03:04:05Z", msg.Headers[HeaderTimestamp])
		assert.Equal(t, now, msg.Time)
	})

	t.Run("не перезаписывает явные headers", func(t *testing.T) {
		ctx := logger.NewContextWithIDs(context.Background(), "trace-ctx", "")
		msg := &Message{Headers: map[string]string{HeaderTraceID: "trace-outbox"}}

		withDefaultHeaders(ctx, msg, now)

		assert.Equal(t, "trace-outbox", msg.Headers[HeaderTraceID])
		_, hasCorrelation := msg.Headers[HeaderCorrelationID]
		assert.False(t, hasCorrelation)
	})
}

func TestMessage_ToKafkaMessage(t *testing.T) {
	msg := &Message{
		Key:     []byte("order-1"),
		Value:   []byte(`{"status":"success"}`),
		Topic:   TopicPaymentEvents,
		Headers: map[string]string{HeaderEventType: "payment.success"},
	}

	km := msg.toKafkaMessage()

	assert.Equal(t, "order-1", string(km.Key))
	assert.Equal(t, TopicPaymentEvents, km.Topic)
	require.Len(t, km.Headers, 1)
	assert.Equal(t, HeaderEventType, km.Headers[0].Key)
	assert.Equal(t, "payment.success", string(km.Headers[0].Value))
}

func TestNewProducer_NoBrokers(t *testing.T) {
	_, err := NewProducer(Config{})
	assert.Error(t, err)
}

func TestDefaultTopics(t *testing.T) {
	assert.Equal(t, TopicPaymentEvents, DefaultTopics("")[0].Name)
	assert.Equal(t, "custom", DefaultTopics("custom")[0].Name)
}
