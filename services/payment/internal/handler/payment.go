package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/services/payment/internal/domain"
	"example.com/photo-payments/services/payment/internal/provider"
)

// maxNotifyBody — ограничение размера уведомления провайдера.
const maxNotifyBody = 64 << 10

// PaymentService — операции сервиса, нужные HTTP слою.
type PaymentService interface {
	CreateOrder(ctx context.Context, serviceType string, amount decimal.Decimal) (*domain.Order, error)
	GetStatus(ctx context.Context, orderID string) (*domain.Order, error)
	ConfirmSuccess(ctx context.Context, orderID string) (*domain.Order, error)
	Cancel(ctx context.Context, orderID string) (*domain.Order, error)
	HandleNotification(ctx context.Context, req *provider.NotificationRequest) error
}

// PaymentHandler — обработчик платёжных заказов.
type PaymentHandler struct {
	service PaymentService
}

// NewPaymentHandler создаёт обработчик платежей.
func NewPaymentHandler(service PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// === Request/Response DTOs ===

// CreatePaymentRequest — запрос на создание платёжного заказа.
// Сумма принимается числом или строкой, проверку делает домен.
type CreatePaymentRequest struct {
	ServiceType string          `json:"serviceType"`
	Amount      decimal.Decimal `json:"amount"`
}

// OrderIDRequest — тело запросов success и cancel.
type OrderIDRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// CreatePaymentResponse — ответ на создание заказа.
type CreatePaymentResponse struct {
	OrderID string `json:"orderId"`
	PayURL  string `json:"payUrl"`
	Status  string `json:"status"`
}

// OrderResponse — состояние платёжного заказа.
type OrderResponse struct {
	OrderID       string  `json:"orderId"`
	Status        string  `json:"status"`
	ServiceType   string  `json:"serviceType"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	PayURL        string  `json:"payUrl,omitempty"`
	FailureReason *string `json:"failureReason,omitempty"`
	CreatedAt     int64   `json:"createdAt"`
	PaidAt        *int64  `json:"paidAt,omitempty"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		OrderID:       o.ID,
		Status:        string(o.Status),
		ServiceType:   o.ServiceType,
		Amount:        o.Amount.StringFixed(2),
		Currency:      o.Currency,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt.Unix(),
	}
	// Ссылка на оплату нужна только пока заказ ждёт оплаты
	if o.Status == domain.OrderStatusPending {
		resp.PayURL = o.PayURL
	}
	if o.PaidAt != nil {
		paid := o.PaidAt.Unix()
		resp.PaidAt = &paid
	}
	return resp
}

// === Handlers ===

// CreatePayment — POST /api/payment/create
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), strings.TrimSpace(req.ServiceType), req.Amount)
	if err != nil {
		HandleServiceError(c, err, "CreatePayment")
		return
	}

	c.JSON(http.StatusOK, CreatePaymentResponse{
		OrderID: order.ID,
		PayURL:  order.PayURL,
		Status:  string(order.Status),
	})
}

// GetStatus — GET /api/payment/status/:orderId
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	order, err := h.service.GetStatus(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		HandleServiceError(c, err, "GetStatus")
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// ConfirmSuccess — POST /api/payment/success
func (h *PaymentHandler) ConfirmSuccess(c *gin.Context) {
	var req OrderIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.service.ConfirmSuccess(c.Request.Context(), req.OrderID)
	if err != nil {
		HandleServiceError(c, err, "ConfirmSuccess")
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// Cancel — POST /api/payment/cancel
func (h *PaymentHandler) Cancel(c *gin.Context) {
	var req OrderIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.service.Cancel(c.Request.Context(), req.OrderID)
	if err != nil {
		HandleServiceError(c, err, "Cancel")
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// Notify — POST /api/payment/notify
// Провайдер ждёт текстовый ответ "success", иначе повторяет уведомление.
func (h *PaymentHandler) Notify(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotifyBody))
	if err != nil {
		log.Warn().Err(err).Msg("Ошибка чтения уведомления провайдера")
		c.String(http.StatusBadRequest, "fail")
		return
	}

	req := &provider.NotificationRequest{
		Body:   body,
		Header: c.Request.Header,
	}
	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			c.String(http.StatusBadRequest, "fail")
			return
		}
		req.Form = form
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	err = h.service.HandleNotification(ctx, req)
	switch {
	case err == nil, errors.Is(err, domain.ErrOrderNotFound):
		// Чужой заказ: подпись верна, повторять уведомление незачем
		c.String(http.StatusOK, "success")
	case errors.Is(err, domain.ErrInvalidNotification):
		c.String(http.StatusBadRequest, "fail")
	default:
		log.Error().Err(err).Msg("Ошибка обработки уведомления провайдера")
		c.String(http.StatusInternalServerError, "fail")
	}
}
