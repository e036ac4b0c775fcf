// Package paymentclient — клиент платёжного API: создание заказа, проверка статуса,
// подтверждение оплаты и отмена.
//
// Клиент ничего не повторяет, не проверяет ответы и не добавляет таймаутов.
// При ошибке он пишет одну запись в лог, для части операций показывает
// сообщение пользователю и возвращает вызывающему ту же самую ошибку.
package paymentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/pkg/metrics"
)

// Operation — имя операции клиента (используется в логах, метриках и политике уведомлений).
type Operation string

const (
	OpCreatePaymentOrder   Operation = "create_payment_order"
	OpCheckPaymentStatus   Operation = "check_payment_status"
	OpHandlePaymentSuccess Operation = "handle_payment_success"
	OpCancelPayment        Operation = "cancel_payment"
)

// PaymentGateway — операции платёжного API, доступные приложению.
type PaymentGateway interface {
	CreatePaymentOrder(ctx context.Context, serviceType string, amount float64) (json.RawMessage, error)
	CheckPaymentStatus(ctx context.Context, orderID string) (json.RawMessage, error)
	HandlePaymentSuccess(ctx context.Context, orderID string) (json.RawMessage, error)
	CancelPayment(ctx context.Context, orderID string) (json.RawMessage, error)
}

// NotifyPolicy — текст уведомления пользователю для операции.
// Операция без записи не уведомляет пользователя.
type NotifyPolicy map[Operation]string

// DefaultNotifyPolicy: пользователь видит ошибки создания и отмены.
// Проверка статуса вызывается в цикле опроса, а подтверждение оплаты
// сообщает о себе через статус заказа.
func DefaultNotifyPolicy() NotifyPolicy {
	return NotifyPolicy{
		OpCreatePaymentOrder: "Не удалось создать платёжный заказ, попробуйте позже",
		OpCancelPayment:      "Не удалось отменить платёж, попробуйте позже",
	}
}

var logMessages = map[Operation]string{
	OpCreatePaymentOrder:   "Ошибка создания платёжного заказа",
	OpCheckPaymentStatus:   "Ошибка проверки статуса платежа",
	OpHandlePaymentSuccess: "Ошибка подтверждения оплаты",
	OpCancelPayment:        "Ошибка отмены платежа",
}

// Client — реализация PaymentGateway.
type Client struct {
	transport Transport
	log       zerolog.Logger
	notifier  Notifier
	policy    NotifyPolicy
}

var _ PaymentGateway = (*Client)(nil)

// Option настраивает Client.
type Option func(*Client)

// WithLogger задаёт логгер для диагностики.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithNotifier задаёт канал уведомлений пользователя.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithNotifyPolicy заменяет политику уведомлений.
func WithNotifyPolicy(p NotifyPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// New создаёт клиента поверх transport.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		log:       logger.Logger(),
		notifier:  NopNotifier{},
		policy:    DefaultNotifyPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTP — New с HTTPTransport для baseURL.
func NewHTTP(baseURL string, opts ...Option) *Client {
	return New(NewHTTPTransport(baseURL), opts...)
}

type createOrderRequest struct {
	ServiceType string  `json:"serviceType"`
	Amount      float64 `json:"amount"`
}

type orderRequest struct {
	OrderID string `json:"orderId"`
}

// CreatePaymentOrder создаёт платёжный заказ: POST /payment/create.
func (c *Client) CreatePaymentOrder(ctx context.Context, serviceType string, amount float64) (json.RawMessage, error) {
	return c.call(ctx, OpCreatePaymentOrder, "", &Request{
		Method: http.MethodPost,
		Path:   "/payment/create",
		Body:   createOrderRequest{ServiceType: serviceType, Amount: amount},
	})
}

// CheckPaymentStatus запрашивает статус заказа: GET /payment/status/{orderId}.
func (c *Client) CheckPaymentStatus(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.call(ctx, OpCheckPaymentStatus, orderID, &Request{
		Method: http.MethodGet,
		Path:   "/payment/status/" + url.PathEscape(orderID),
	})
}

// HandlePaymentSuccess подтверждает оплату: POST /payment/success.
func (c *Client) HandlePaymentSuccess(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.call(ctx, OpHandlePaymentSuccess, orderID, &Request{
		Method: http.MethodPost,
		Path:   "/payment/success",
		Body:   orderRequest{OrderID: orderID},
	})
}

// CancelPayment отменяет платёж: POST /payment/cancel.
func (c *Client) CancelPayment(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.call(ctx, OpCancelPayment, orderID, &Request{
		Method: http.MethodPost,
		Path:   "/payment/cancel",
		Body:   orderRequest{OrderID: orderID},
	})
}

func (c *Client) call(ctx context.Context, op Operation, orderID string, req *Request) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.transport.Send(ctx, req)
	metrics.RecordClientCall(string(op), err, time.Since(start))

	if err != nil {
		c.fail(ctx, op, orderID, err)
		return nil, err
	}
	return resp.Body, nil
}

// fail пишет одну запись в лог и, если так задано политикой, одно уведомление.
func (c *Client) fail(ctx context.Context, op Operation, orderID string, err error) {
	log := logger.Enrich(ctx, c.log)
	event := log.Error().Err(err).Str("operation", string(op))
	if orderID != "" {
		event = event.Str("order_id", orderID)
	}
	event.Msg(logMessages[op])

	if message, ok := c.policy[op]; ok {
		c.notifier.Error(ctx, message)
	}
}
