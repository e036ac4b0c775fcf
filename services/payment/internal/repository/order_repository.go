// Package repository содержит реализацию доступа к данным для Payment Service.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/photo-payments/pkg/outbox"
	"example.com/photo-payments/services/payment/internal/domain"
)

// OrderRepository определяет интерфейс для работы с платёжными заказами в БД.
// Изменения заказа и событие outbox сохраняются в одной транзакции.
type OrderRepository interface {
	// Create сохраняет новый заказ и событие о его создании.
	Create(ctx context.Context, order *domain.Order, event *outbox.Record) error

	// GetByID возвращает заказ по ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// UpdateStatus сохраняет новый статус, если в БД заказ всё ещё в статусе from.
	// Иначе возвращает domain.ErrInvalidTransition (заказ изменён параллельно).
	UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus, event *outbox.Record) error

	// GetStalePending возвращает заказы в статусе pending старше olderThan.
	GetStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Order, error)
}

// =============================================================================
// GORM модель
// =============================================================================

// OrderModel — GORM модель для таблицы payment_orders.
type OrderModel struct {
	ID            string          `gorm:"column:id;type:varchar(36);primaryKey"`
	ServiceType   string          `gorm:"column:service_type;type:varchar(64);not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Currency      string          `gorm:"column:currency;type:varchar(3);not null"`
	Provider      string          `gorm:"column:provider;type:varchar(20);not null"`
	ProviderRef   string          `gorm:"column:provider_ref;type:varchar(128)"`
	PayURL        string          `gorm:"column:pay_url;type:text"`
	Status        string          `gorm:"column:status;type:varchar(20);not null;index:idx_orders_status_created"`
	FailureReason *string         `gorm:"column:failure_reason;type:text"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_orders_status_created"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	PaidAt        *time.Time      `gorm:"column:paid_at"`
}

// TableName возвращает имя таблицы в БД.
func (OrderModel) TableName() string {
	return "payment_orders"
}

func (m *OrderModel) toDomain() *domain.Order {
	return &domain.Order{
		ID:            m.ID,
		ServiceType:   m.ServiceType,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Provider:      m.Provider,
		ProviderRef:   m.ProviderRef,
		PayURL:        m.PayURL,
		Status:        domain.OrderStatus(m.Status),
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		PaidAt:        m.PaidAt,
	}
}

func orderModelFromDomain(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:            o.ID,
		ServiceType:   o.ServiceType,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Provider:      o.Provider,
		ProviderRef:   o.ProviderRef,
		PayURL:        o.PayURL,
		Status:        string(o.Status),
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		PaidAt:        o.PaidAt,
	}
}

// =============================================================================
// Реализация репозитория
// =============================================================================

type orderRepository struct {
	db     *gorm.DB
	events outbox.Repository
}

// NewOrderRepository создаёт репозиторий заказов. events пишет в ту же БД.
func NewOrderRepository(db *gorm.DB, events outbox.Repository) OrderRepository {
	return &orderRepository{db: db, events: events}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, event *outbox.Record) error {
	model := orderModelFromDomain(order)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if event == nil {
			return nil
		}
		return r.events.WithTx(tx).Create(ctx, event)
	})
	if err != nil {
		return err
	}

	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel

	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus, event *outbox.Record) error {
	updatedAt := time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&OrderModel{}).
			Where("id = ? AND status = ?", order.ID, string(from)).
			Updates(map[string]any{
				"status":         string(order.Status),
				"provider_ref":   order.ProviderRef,
				"failure_reason": order.FailureReason,
				"paid_at":        order.PaidAt,
				"updated_at":     updatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvalidTransition
		}

		order.UpdatedAt = updatedAt
		if event == nil {
			return nil
		}
		return r.events.WithTx(tx).Create(ctx, event)
	})
}

func (r *orderRepository) GetStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Order, error) {
	var models []OrderModel

	threshold := time.Now().Add(-olderThan)

	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(domain.OrderStatusPending), threshold).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, models[i].toDomain())
	}
	return orders, nil
}
