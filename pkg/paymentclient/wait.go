package paymentclient

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"
)

// Статусы заказа, которые сообщает сервер.
const (
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// StatusView — поля ответа статуса, нужные для ожидания.
// Остальные поля ответа клиент не интерпретирует.
type StatusView struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// IsTerminal сообщает, что статус больше не изменится.
func IsTerminal(status string) bool {
	switch status {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// WaitForCompletion опрашивает CheckPaymentStatus не чаще, чем разрешает limiter,
// пока сервер не вернёт конечный статус или не отменится ctx.
// Ошибка опроса прерывает ожидание и возвращается как есть.
func WaitForCompletion(ctx context.Context, gw PaymentGateway, orderID string, limiter *rate.Limiter) (json.RawMessage, error) {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		raw, err := gw.CheckPaymentStatus(ctx, orderID)
		if err != nil {
			return nil, err
		}

		var view StatusView
		if err := json.Unmarshal(raw, &view); err != nil {
			return nil, fmt.Errorf("не удалось разобрать статус заказа %s: %w", orderID, err)
		}
		if IsTerminal(view.Status) {
			return raw, nil
		}
	}
}
