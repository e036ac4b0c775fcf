package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus — статус платёжного заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, ожидает оплаты.
	OrderStatusPending OrderStatus = "pending"

	// OrderStatusSuccess — оплата подтверждена.
	OrderStatusSuccess OrderStatus = "success"

	// OrderStatusFailed — оплата не прошла или заказ истёк.
	OrderStatusFailed OrderStatus = "failed"

	// OrderStatusCancelled — заказ отменён пользователем.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal возвращает true, если статус больше не меняется.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

// =============================================================================
// Допустимые переходы состояний (State Machine)
// =============================================================================

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusSuccess, OrderStatusFailed, OrderStatusCancelled},
	// success, failed, cancelled — терминальные
}

// =============================================================================
// Order — доменная сущность
// =============================================================================

// Order — платёжный заказ на услугу.
type Order struct {
	ID            string          // UUID заказа, его видит клиент как orderId
	ServiceType   string          // Тип услуги (basic, premium ...)
	Amount        decimal.Decimal // Сумма в основных единицах валюты
	Currency      string          // ISO 4217
	Provider      string          // alipay / stripe / fake
	ProviderRef   string          // ID сделки у провайдера
	PayURL        string          // Ссылка на оплату
	Status        OrderStatus
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
}

// ValidateAmount проверяет сумму: положительная, не более двух знаков после запятой.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// NewOrder создаёт заказ в статусе pending.
func NewOrder(id, serviceType string, amount decimal.Decimal, currency, provider string) (*Order, error) {
	if strings.TrimSpace(serviceType) == "" {
		return nil, ErrInvalidServiceType
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Order{
		ID:          id,
		ServiceType: serviceType,
		Amount:      amount,
		Currency:    currency,
		Provider:    provider,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (o *Order) CanTransitionTo(newStatus OrderStatus) bool {
	for _, status := range allowedTransitions[o.Status] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo выполняет переход в новое состояние.
func (o *Order) TransitionTo(newStatus OrderStatus) error {
	if !o.CanTransitionTo(newStatus) {
		return ErrInvalidTransition
	}
	o.Status = newStatus
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaid переводит заказ в success.
func (o *Order) MarkPaid(at time.Time) error {
	if err := o.TransitionTo(OrderStatusSuccess); err != nil {
		return err
	}
	o.PaidAt = &at
	return nil
}

// Fail переводит заказ в failed с причиной.
func (o *Order) Fail(reason string) error {
	if err := o.TransitionTo(OrderStatusFailed); err != nil {
		return err
	}
	o.FailureReason = &reason
	return nil
}

// Cancel переводит заказ в cancelled.
func (o *Order) Cancel() error {
	return o.TransitionTo(OrderStatusCancelled)
}
