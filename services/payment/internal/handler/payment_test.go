package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/photo-payments/services/payment/internal/domain"
	"example.com/photo-payments/services/payment/internal/provider"
)

// MockPaymentService — мок для PaymentService.
type MockPaymentService struct {
	CreateOrderFunc        func(ctx context.Context, serviceType string, amount decimal.Decimal) (*domain.Order, error)
	GetStatusFunc          func(ctx context.Context, orderID string) (*domain.Order, error)
	ConfirmSuccessFunc     func(ctx context.Context, orderID string) (*domain.Order, error)
	CancelFunc             func(ctx context.Context, orderID string) (*domain.Order, error)
	HandleNotificationFunc func(ctx context.Context, req *provider.NotificationRequest) error
}

func (m *MockPaymentService) CreateOrder(ctx context.Context, serviceType string, amount decimal.Decimal) (*domain.Order, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, serviceType, amount)
	}
	return nil, nil
}

func (m *MockPaymentService) GetStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *MockPaymentService) ConfirmSuccess(ctx context.Context, orderID string) (*domain.Order, error) {
	if m.ConfirmSuccessFunc != nil {
		return m.ConfirmSuccessFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *MockPaymentService) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *MockPaymentService) HandleNotification(ctx context.Context, req *provider.NotificationRequest) error {
	if m.HandleNotificationFunc != nil {
		return m.HandleNotificationFunc(ctx, req)
	}
	return nil
}

// setupTestRouter создаёт Gin router с маршрутами платежей.
func setupTestRouter(h *PaymentHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.POST("/api/payment/create", h.CreatePayment)
	r.GET("/api/payment/status/:orderId", h.GetStatus)
	r.POST("/api/payment/success", h.ConfirmSuccess)
	r.POST("/api/payment/cancel", h.Cancel)
	r.POST("/api/payment/notify", h.Notify)

	return r
}

func testOrder(status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		ID:          "order-1",
		ServiceType: "premium",
		Amount:      decimal.RequireFromString("99"),
		Currency:    "CNY",
		Provider:    "fake",
		ProviderRef: "fake-order-1",
		PayURL:      "https://pay.fake.local/checkout/order-1",
		Status:      status,
		CreatedAt:   time.Unix(1700000000, 0),
		UpdatedAt:   time.Unix(1700000000, 0),
	}
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	t.Run("успешное создание", func(t *testing.T) {
		var gotType string
		var gotAmount decimal.Decimal
		mock := &MockPaymentService{
			CreateOrderFunc: func(_ context.Context, serviceType string, amount decimal.Decimal) (*domain.Order, error) {
				gotType, gotAmount = serviceType, amount
				return testOrder(domain.OrderStatusPending), nil
			},
		}
		r := setupTestRouter(NewPaymentHandler(mock))

		w := postJSON(r, "/api/payment/create", `{"serviceType":" premium ","amount":99.5}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "premium", gotType)
		assert.True(t, decimal.RequireFromString("99.5").Equal(gotAmount))

		var resp CreatePaymentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "order-1", resp.OrderID)
		assert.Equal(t, "https://pay.fake.local/checkout/order-1", resp.PayURL)
		assert.Equal(t, "pending", resp.Status)
	})

	t.Run("сумма строкой", func(t *testing.T) {
		var gotAmount decimal.Decimal
		mock := &MockPaymentService{
			CreateOrderFunc: func(_ context.Context, _ string, amount decimal.Decimal) (*domain.Order, error) {
				gotAmount = amount
				return testOrder(domain.OrderStatusPending), nil
			},
		}
		r := setupTestRouter(NewPaymentHandler(mock))

		w := postJSON(r, "/api/payment/create", `{"serviceType":"basic","amount":"19.90"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "19.9", gotAmount.String())
	})

	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"невалидный JSON", `{invalid`, nil, http.StatusBadRequest, "invalid_request"},
		{"сумма не число", `{"serviceType":"basic","amount":"abc"}`, nil, http.StatusBadRequest, "invalid_request"},
		{"некорректная сумма", `{"serviceType":"basic","amount":0}`, domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_argument"},
		{"нет типа услуги", `{"amount":10}`, domain.ErrInvalidServiceType, http.StatusBadRequest, "invalid_argument"},
		{"провайдер недоступен", `{"serviceType":"basic","amount":10}`, fmt.Errorf("%w: timeout", domain.ErrProviderUnavailable), http.StatusBadGateway, "provider_unavailable"},
		{"ошибка БД", `{"serviceType":"basic","amount":10}`, errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockPaymentService{
				CreateOrderFunc: func(context.Context, string, decimal.Decimal) (*domain.Order, error) {
					return nil, tt.serviceErr
				},
			}
			r := setupTestRouter(NewPaymentHandler(mock))

			w := postJSON(r, "/api/payment/create", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestPaymentHandler_GetStatus(t *testing.T) {
	t.Run("pending заказ со ссылкой на оплату", func(t *testing.T) {
		var gotID string
		mock := &MockPaymentService{
			GetStatusFunc: func(_ context.Context, orderID string) (*domain.Order, error) {
				gotID = orderID
				return testOrder(domain.OrderStatusPending), nil
			},
		}
		r := setupTestRouter(NewPaymentHandler(mock))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payment/status/order-1", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "order-1", gotID)

		var resp OrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, "99.00", resp.Amount)
		assert.Equal(t, "CNY", resp.Currency)
		assert.NotEmpty(t, resp.PayURL)
		assert.Equal(t, int64(1700000000), resp.CreatedAt)
		assert.Nil(t, resp.PaidAt)
	})

	t.Run("оплаченный заказ", func(t *testing.T) {
		mock := &MockPaymentService{
			GetStatusFunc: func(context.Context, string) (*domain.Order, error) {
				o := testOrder(domain.OrderStatusSuccess)
				paid := time.Unix(1700000100, 0)
				o.PaidAt = &paid
				return o, nil
			},
		}
		r := setupTestRouter(NewPaymentHandler(mock))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payment/status/order-1", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp OrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "success", resp.Status)
		assert.Empty(t, resp.PayURL, "ссылка на оплату не нужна после оплаты")
		require.NotNil(t, resp.PaidAt)
		assert.Equal(t, int64(1700000100), *resp.PaidAt)
	})

	t.Run("заказ не найден", func(t *testing.T) {
		mock := &MockPaymentService{
			GetStatusFunc: func(context.Context, string) (*domain.Order, error) {
				return nil, domain.ErrOrderNotFound
			},
		}
		r := setupTestRouter(NewPaymentHandler(mock))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payment/status/missing", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "order_not_found")
	})
}

func TestPaymentHandler_ConfirmSuccess(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		order      *domain.Order
		serviceErr error
		wantStatus int
		wantBody   string
	}{
		{"оплата подтверждена", `{"orderId":"order-1"}`, testOrder(domain.OrderStatusSuccess), nil, http.StatusOK, `"status":"success"`},
		{"нет orderId", `{}`, nil, nil, http.StatusBadRequest, "invalid_request"},
		{"оплата ещё не прошла", `{"orderId":"order-1"}`, nil, domain.ErrPaymentNotConfirmed, http.StatusConflict, "payment_not_confirmed"},
		{"заказ закрыт", `{"orderId":"order-1"}`, nil, domain.ErrOrderClosed, http.StatusConflict, "order_closed"},
		{"заказ не найден", `{"orderId":"x"}`, nil, domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockPaymentService{
				ConfirmSuccessFunc: func(_ context.Context, orderID string) (*domain.Order, error) {
					return tt.order, tt.serviceErr
				},
			}
			r := setupTestRouter(NewPaymentHandler(mock))

			w := postJSON(r, "/api/payment/success", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestPaymentHandler_Cancel(t *testing.T) {
	tests := []struct {
		name       string
		order      *domain.Order
		serviceErr error
		wantStatus int
		wantBody   string
	}{
		{"заказ отменён", testOrder(domain.OrderStatusCancelled), nil, http.StatusOK, `"status":"cancelled"`},
		{"уже оплачен", nil, domain.ErrOrderCompleted, http.StatusConflict, "order_completed"},
		{"провайдер недоступен", nil, fmt.Errorf("%w: 503", domain.ErrProviderUnavailable), http.StatusBadGateway, "provider_unavailable"},
		{"параллельное изменение", nil, domain.ErrInvalidTransition, http.StatusConflict, "conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID string
			mock := &MockPaymentService{
				CancelFunc: func(_ context.Context, orderID string) (*domain.Order, error) {
					gotID = orderID
					return tt.order, tt.serviceErr
				},
			}
			r := setupTestRouter(NewPaymentHandler(mock))

			w := postJSON(r, "/api/payment/cancel", `{"orderId":"order-1"}`)

			assert.Equal(t, "order-1", gotID)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestPaymentHandler_Notify(t *testing.T) {
	t.Run("форма Alipay разбирается", func(t *testing.T) {
		var got *provider.NotificationRequest
		mock := &MockPaymentService{
			HandleNotificationFunc: func(_ context.Context, req *provider.NotificationRequest) error {
				got = req
				return nil
			},
		}
		r := setupTestRouter(NewPaymentHandler(mock))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/payment/notify",
			strings.NewReader("out_trade_no=order-1&trade_status=TRADE_SUCCESS&sign=abc"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "success", w.Body.String())
		require.NotNil(t, got)
		assert.Equal(t, "order-1", got.Form.Get("out_trade_no"))
		assert.Equal(t, "TRADE_SUCCESS", got.Form.Get("trade_status"))
	})

	t.Run("JSON Stripe передаётся как есть", func(t *testing.T) {
		var got *provider.NotificationRequest
		mock := &MockPaymentService{
			HandleNotificationFunc: func(_ context.Context, req *provider.NotificationRequest) error {
				got = req
				return nil
			},
		}
		r := setupTestRouter(NewPaymentHandler(mock))

		payload := `{"type":"checkout.session.completed"}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/payment/notify", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, got)
		assert.Equal(t, payload, string(got.Body))
		assert.Nil(t, got.Form)
		assert.Equal(t, "t=1,v1=abc", got.Header.Get("Stripe-Signature"))
	})

	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantBody   string
	}{
		{"неизвестный заказ подтверждается", domain.ErrOrderNotFound, http.StatusOK, "success"},
		{"неверная подпись", fmt.Errorf("%w: bad sign", domain.ErrInvalidNotification), http.StatusBadRequest, "fail"},
		{"ошибка БД", errors.New("db down"), http.StatusInternalServerError, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockPaymentService{
				HandleNotificationFunc: func(context.Context, *provider.NotificationRequest) error {
					return tt.serviceErr
				},
			}
			r := setupTestRouter(NewPaymentHandler(mock))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/payment/notify", strings.NewReader("a=b"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}
