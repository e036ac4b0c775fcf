package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"example.com/photo-payments/pkg/circuitbreaker"
	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/services/payment/internal/domain"
)

// StripeConfig — параметры Stripe Checkout.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	APIURL        string // переопределяет https://api.stripe.com (тесты)
}

// Stripe — провайдер на Checkout Sessions.
type Stripe struct {
	cfg StripeConfig
	api *client.API
}

// NewStripe создаёт провайдера. Встроенные повторы stripe-go отключены,
// запросы идут через circuit breaker.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe: не задан секретный ключ")
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: circuitbreaker.New("stripe").RoundTripper(http.DefaultTransport),
		},
		LeveledLogger:     stripeLogger{log: logger.Logger().With().Str("component", "stripe").Logger()},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})

	return &Stripe{cfg: cfg, api: api}, nil
}

func (s *Stripe) Name() string { return "stripe" }

// CreatePayment создаёт Checkout Session на сумму заказа.
func (s *Stripe) CreatePayment(ctx context.Context, order *domain.Order) (*Payment, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(order.ID),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(order.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(Subject(order.ServiceType)),
					},
					UnitAmount: stripe.Int64(order.Amount.Shift(2).IntPart()),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", order.ID)

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: ошибка создания сессии: %w", err)
	}
	return &Payment{ProviderRef: session.ID, PayURL: session.URL}, nil
}

// QueryTrade читает Checkout Session по ProviderRef.
func (s *Stripe) QueryTrade(ctx context.Context, order *domain.Order) (*TradeResult, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := s.api.CheckoutSessions.Get(order.ProviderRef, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: ошибка запроса сессии: %w", err)
	}
	return sessionTradeResult(session), nil
}

// CloseTrade отменяет открытую Checkout Session.
func (s *Stripe) CloseTrade(ctx context.Context, order *domain.Order) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := s.api.CheckoutSessions.Expire(order.ProviderRef, params); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("stripe: ошибка отмены сессии: %w", err)
	}
	return nil
}

// VerifyNotification проверяет подпись webhook (заголовок Stripe-Signature).
func (s *Stripe) VerifyNotification(ctx context.Context, req *NotificationRequest) (*Notification, error) {
	event, err := webhook.ConstructEventWithOptions(req.Body, req.Header.Get("Stripe-Signature"),
		s.cfg.WebhookSecret, webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: пустое событие", ErrInvalidSignature)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if session.ClientReferenceID == "" {
		return nil, fmt.Errorf("%w: нет client_reference_id", ErrInvalidSignature)
	}

	trade := TradeResult{Status: TradePending, RawStatus: string(event.Type)}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		trade = *sessionTradeResult(&session)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		trade.Status = TradeSuccess
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		trade.Status = TradeFailed
	}

	logger.Ctx(ctx).Debug().
		Str("order_id", session.ClientReferenceID).
		Str("event_type", string(event.Type)).
		Msg("Webhook Stripe проверен")

	return &Notification{
		OrderID:     session.ClientReferenceID,
		ProviderRef: session.ID,
		Trade:       trade,
	}, nil
}

func sessionTradeResult(session *stripe.CheckoutSession) *TradeResult {
	raw := string(session.Status) + "/" + string(session.PaymentStatus)
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return &TradeResult{Status: TradeSuccess, RawStatus: raw}
	case session.Status == stripe.CheckoutSessionStatusExpired:
		return &TradeResult{Status: TradeFailed, RawStatus: raw}
	default:
		return &TradeResult{Status: TradePending, RawStatus: raw}
	}
}

// stripeLogger направляет логи stripe-go в zerolog.
type stripeLogger struct {
	log zerolog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l stripeLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l stripeLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
