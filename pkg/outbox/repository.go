package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrRecordNotFound — запись outbox не найдена.
var ErrRecordNotFound = errors.New("запись outbox не найдена")

// Repository — хранилище outbox.
type Repository interface {
	// Create сохраняет запись. Внутри транзакции используйте WithTx.
	Create(ctx context.Context, record *Record) error

	// WithTx возвращает репозиторий, работающий в переданной транзакции.
	WithTx(tx *gorm.DB) Repository

	// GetUnprocessed возвращает неотправленные записи, сначала с меньшим retry_count.
	GetUnprocessed(ctx context.Context, limit int) ([]*Record, error)

	// MarkProcessed помечает запись отправленной.
	MarkProcessed(ctx context.Context, id string) error

	// MarkFailed увеличивает retry_count и сохраняет текст ошибки.
	MarkFailed(ctx context.Context, id string, err error) error

	// DeleteProcessedBefore удаляет отправленные записи старше before (пачкой до 1000).
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db            *gorm.DB
	aggregateType string
}

// NewRepository создаёт репозиторий outbox для записей одного типа агрегата.
func NewRepository(db *gorm.DB, aggregateType string) Repository {
	return &repository{db: db, aggregateType: aggregateType}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx, aggregateType: r.aggregateType}
}

func (r *repository) Create(ctx context.Context, record *Record) error {
	if record.AggregateType == "" {
		record.AggregateType = r.aggregateType
	}
	model := modelFromRecord(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	record.CreatedAt = model.CreatedAt
	return nil
}

func (r *repository) GetUnprocessed(ctx context.Context, limit int) ([]*Record, error) {
	var models []Model

	if err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND aggregate_type = ?", r.aggregateType).
		Order("retry_count ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	records := make([]*Record, len(models))
	for i := range models {
		records[i] = models[i].toRecord()
	}
	return records, nil
}

func (r *repository) MarkProcessed(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Update("processed_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id string, err error) error {
	result := r.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  err.Error(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ? AND aggregate_type = ?", before, r.aggregateType).
		Limit(1000).
		Delete(&Model{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
