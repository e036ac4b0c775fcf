package outbox

import (
	"context"
	"time"

	"example.com/photo-payments/pkg/kafka"
	"example.com/photo-payments/pkg/logger"
)

// Publisher — отправка сообщений в брокер (реализуется kafka.Producer).
type Publisher interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// WorkerConfig — настройки Worker.
type WorkerConfig struct {
	PollInterval     time.Duration // интервал опроса таблицы outbox
	BatchSize        int           // записей за один опрос
	MaxRetries       int           // после этого запись уходит в dead letter
	CleanupInterval  time.Duration // как часто чистить отправленные записи
	CleanupRetention time.Duration // сколько хранить отправленные записи
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:     time.Second,
		BatchSize:        100,
		MaxRetries:       5,
		CleanupInterval:  time.Hour,
		CleanupRetention: 7 * 24 * time.Hour,
	}
}

// Worker публикует записи outbox в Kafka.
type Worker struct {
	repo      Repository
	publisher Publisher
	cfg       WorkerConfig
	name      string
}

// NewWorker создаёт Worker. name используется в логах.
func NewWorker(repo Repository, publisher Publisher, cfg WorkerConfig, name string) *Worker {
	return &Worker{repo: repo, publisher: publisher, cfg: cfg, name: name}
}

// Run блокирует выполнение до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With().Str("worker", w.name).Logger()
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Outbox Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Worker")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			w.Cleanup(ctx)
		}
	}
}

// ProcessBatch отправляет одну пачку записей и возвращает число успешно опубликованных.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	log := logger.FromContext(ctx)

	records, err := w.repo.GetUnprocessed(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("worker", w.name).Msg("Ошибка чтения outbox")
		return 0
	}

	sent := 0
	for _, record := range records {
		if ctx.Err() != nil {
			return sent
		}

		if record.RetryCount >= w.cfg.MaxRetries {
			log.Warn().
				Str("outbox_id", record.ID).
				Str("event_type", record.EventType).
				Str("aggregate_id", record.AggregateID).
				Int("retry_count", record.RetryCount).
				Msg("Dead letter: превышен лимит попыток, запись выведена из очереди")

			if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
				log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки dead letter")
			}
			continue
		}

		if w.publish(ctx, record) {
			sent++
		}
	}
	return sent
}

// publish отправляет запись и отмечает результат в outbox.
func (w *Worker) publish(ctx context.Context, record *Record) bool {
	log := logger.FromContext(ctx)

	msg := &kafka.Message{
		Topic:   record.Topic,
		Key:     []byte(record.MessageKey),
		Value:   record.Payload,
		Headers: record.Headers,
	}

	if err := w.publisher.SendMessage(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("outbox_id", record.ID).
			Str("topic", record.Topic).
			Msg("Ошибка отправки в Kafka")

		if markErr := w.repo.MarkFailed(ctx, record.ID, err); markErr != nil {
			log.Error().Err(markErr).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как failed")
		}
		return false
	}

	if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
		// Сообщение уже ушло; повторная отправка допустима (at-least-once)
		log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки outbox как обработанной")
		return false
	}

	log.Debug().
		Str("outbox_id", record.ID).
		Str("event_type", record.EventType).
		Msg("Событие отправлено в Kafka")
	return true
}

// Cleanup удаляет отправленные записи старше CleanupRetention.
func (w *Worker) Cleanup(ctx context.Context) {
	log := logger.FromContext(ctx)

	deleted, err := w.repo.DeleteProcessedBefore(ctx, time.Now().Add(-w.cfg.CleanupRetention))
	if err != nil {
		log.Error().Err(err).Str("worker", w.name).Msg("Ошибка очистки outbox")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Str("worker", w.name).Msg("Очистка отправленных записей outbox")
	}
}
