// Package outbox — Outbox Pattern для событий платежей.
// Смена статуса заказа и запись события пишутся в одной транзакции MySQL,
// а Worker публикует события в Kafka с гарантией at-least-once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/photo-payments/pkg/logger"
)

// Record — запись таблицы outbox.
type Record struct {
	ID            string            // UUID записи
	AggregateType string            // Тип агрегата (payment_order)
	AggregateID   string            // ID агрегата (order_id)
	EventType     string            // Тип события (payment.success / payment.cancelled ...)
	Topic         string            // Kafka топик
	MessageKey    string            // Ключ партиционирования
	Payload       []byte            // JSON payload
	Headers       map[string]string // trace_id, correlation_id, event_type
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil — ещё не отправлена
	RetryCount    int
	LastError     *string
}

// NewRecord сериализует payload и заполняет headers из контекста.
func NewRecord(ctx context.Context, aggregateType, aggregateID, eventType, topic string, payload any) (*Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события %s: %w", eventType, err)
	}

	headers := map[string]string{"event_type": eventType}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		headers["trace_id"] = traceID
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		headers["correlation_id"] = correlationID
	}

	return &Record{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		MessageKey:    aggregateID,
		Payload:       data,
		Headers:       headers,
		CreatedAt:     time.Now(),
	}, nil
}

// HeadersJSON возвращает headers в JSON для колонки БД.
func (r *Record) HeadersJSON() ([]byte, error) {
	if r.Headers == nil {
		return nil, nil
	}
	return json.Marshal(r.Headers)
}

// SetHeadersFromJSON восстанавливает headers из колонки БД.
func (r *Record) SetHeadersFromJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &r.Headers)
}
