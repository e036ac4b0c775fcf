package domain

import "time"

// Типы событий платёжного заказа (публикуются через outbox в Kafka).
const (
	AggregateType = "payment_order"

	EventOrderCreated   = "payment.created"
	EventOrderSucceeded = "payment.success"
	EventOrderFailed    = "payment.failed"
	EventOrderCancelled = "payment.cancelled"
)

// OrderEvent — payload события.
type OrderEvent struct {
	OrderID     string    `json:"orderId"`
	ServiceType string    `json:"serviceType"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Provider    string    `json:"provider"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// EventTypeFor возвращает тип события для статуса заказа.
func EventTypeFor(status OrderStatus) string {
	switch status {
	case OrderStatusSuccess:
		return EventOrderSucceeded
	case OrderStatusFailed:
		return EventOrderFailed
	case OrderStatusCancelled:
		return EventOrderCancelled
	default:
		return EventOrderCreated
	}
}

// NewOrderEvent собирает payload события из заказа.
func NewOrderEvent(o *Order) OrderEvent {
	e := OrderEvent{
		OrderID:     o.ID,
		ServiceType: o.ServiceType,
		Amount:      o.Amount.StringFixed(2),
		Currency:    o.Currency,
		Provider:    o.Provider,
		Status:      string(o.Status),
		OccurredAt:  o.UpdatedAt,
	}
	if o.FailureReason != nil {
		e.Reason = *o.FailureReason
	}
	return e
}
