// Package provider — интеграции с платёжными провайдерами.
package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"example.com/photo-payments/services/payment/internal/domain"
)

// TradeStatus — статус сделки у провайдера, приведённый к статусам заказа.
type TradeStatus string

const (
	TradePending TradeStatus = "pending"
	TradeSuccess TradeStatus = "success"
	TradeFailed  TradeStatus = "failed"
)

// ErrInvalidSignature — подпись уведомления не прошла проверку.
var ErrInvalidSignature = errors.New("неверная подпись уведомления")

// Payment — результат создания платежа у провайдера.
type Payment struct {
	ProviderRef string // ID сделки или сессии у провайдера
	PayURL      string // куда перенаправить пользователя
}

// TradeResult — ответ провайдера о состоянии сделки.
type TradeResult struct {
	Status    TradeStatus
	RawStatus string // исходный статус провайдера (TRADE_SUCCESS, expired ...)
}

// NotificationRequest — входящее асинхронное уведомление в сыром виде.
type NotificationRequest struct {
	Form   url.Values  // Alipay шлёт application/x-www-form-urlencoded
	Body   []byte      // Stripe шлёт JSON
	Header http.Header // Stripe-Signature
}

// Notification — проверенное уведомление.
type Notification struct {
	OrderID     string
	ProviderRef string
	Trade       TradeResult
}

// Provider — платёжный провайдер.
type Provider interface {
	// Name возвращает код провайдера (alipay, stripe, fake).
	Name() string

	// CreatePayment создаёт сделку и возвращает ссылку на оплату.
	CreatePayment(ctx context.Context, order *domain.Order) (*Payment, error)

	// QueryTrade запрашивает текущий статус сделки.
	QueryTrade(ctx context.Context, order *domain.Order) (*TradeResult, error)

	// CloseTrade закрывает неоплаченную сделку. Отсутствие сделки не ошибка.
	CloseTrade(ctx context.Context, order *domain.Order) error

	// VerifyNotification проверяет подпись уведомления и разбирает его.
	VerifyNotification(ctx context.Context, req *NotificationRequest) (*Notification, error)
}

// Subject — название товара в платёжной форме.
func Subject(serviceType string) string {
	return "AI Photo " + capitalize(serviceType) + " Service"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
