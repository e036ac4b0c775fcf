package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/photo-payments/pkg/paymentclient"
)

// mockGateway — мок PaymentGateway.
type mockGateway struct {
	CreateFunc  func(ctx context.Context, serviceType string, amount float64) (json.RawMessage, error)
	StatusFunc  func(ctx context.Context, orderID string) (json.RawMessage, error)
	SuccessFunc func(ctx context.Context, orderID string) (json.RawMessage, error)
	CancelFunc  func(ctx context.Context, orderID string) (json.RawMessage, error)
}

func (m *mockGateway) CreatePaymentOrder(ctx context.Context, serviceType string, amount float64) (json.RawMessage, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, serviceType, amount)
	}
	return nil, nil
}

func (m *mockGateway) CheckPaymentStatus(ctx context.Context, orderID string) (json.RawMessage, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *mockGateway) HandlePaymentSuccess(ctx context.Context, orderID string) (json.RawMessage, error) {
	if m.SuccessFunc != nil {
		return m.SuccessFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *mockGateway) CancelPayment(ctx context.Context, orderID string) (json.RawMessage, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, orderID)
	}
	return nil, nil
}

var _ paymentclient.PaymentGateway = (*mockGateway)(nil)

func newTestApp(gw paymentclient.PaymentGateway) (*App, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &App{Gateway: gw, Out: out, Err: errOut, PollInterval: time.Millisecond}, out, errOut
}

func TestApp_Create(t *testing.T) {
	var gotType string
	var gotAmount float64
	gw := &mockGateway{
		CreateFunc: func(_ context.Context, serviceType string, amount float64) (json.RawMessage, error) {
			gotType, gotAmount = serviceType, amount
			return json.RawMessage(`{"orderId":"X","status":"pending"}`), nil
		},
	}
	app, out, _ := newTestApp(gw)

	err := app.Run(context.Background(), []string{"create", "-type", "premium", "-amount", "9900"})

	require.NoError(t, err)
	assert.Equal(t, "premium", gotType)
	assert.Equal(t, 9900.0, gotAmount)
	assert.Equal(t, "{\"orderId\":\"X\",\"status\":\"pending\"}\n", out.String())
}

func TestApp_OrderCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
	}{
		{"статус", "status"},
		{"подтверждение", "success"},
		{"отмена", "cancel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called, gotID string
			record := func(op string) func(context.Context, string) (json.RawMessage, error) {
				return func(_ context.Context, orderID string) (json.RawMessage, error) {
					called, gotID = op, orderID
					return json.RawMessage(`{"status":"ok"}`), nil
				}
			}
			gw := &mockGateway{
				StatusFunc:  record("status"),
				SuccessFunc: record("success"),
				CancelFunc:  record("cancel"),
			}
			app, out, _ := newTestApp(gw)

			err := app.Run(context.Background(), []string{tt.cmd, "order-42"})

			require.NoError(t, err)
			assert.Equal(t, tt.cmd, called)
			assert.Equal(t, "order-42", gotID)
			assert.Equal(t, "{\"status\":\"ok\"}\n", out.String())
		})
	}
}

func TestApp_ErrorReturnedAsIs(t *testing.T) {
	transportErr := &paymentclient.TransportError{Method: "POST", Path: "/api/payment/cancel", StatusCode: 502}
	gw := &mockGateway{
		CancelFunc: func(context.Context, string) (json.RawMessage, error) {
			return nil, transportErr
		},
	}
	app, out, _ := newTestApp(gw)

	err := app.Run(context.Background(), []string{"cancel", "order-1"})

	var te *paymentclient.TransportError
	require.ErrorAs(t, err, &te)
	assert.Same(t, transportErr, te)
	assert.Empty(t, out.String())
}

func TestApp_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"без команды", nil},
		{"неизвестная команда", []string{"refund"}},
		{"create без суммы", []string{"create", "-type", "basic"}},
		{"create сумма не число", []string{"create", "-type", "basic", "-amount", "abc"}},
		{"create неизвестный флаг", []string{"create", "-currency", "USD"}},
		{"status без orderId", []string{"status"}},
		{"cancel с лишним аргументом", []string{"cancel", "a", "b"}},
		{"wait без orderId", []string{"wait"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, out, errOut := newTestApp(&mockGateway{})

			err := app.Run(context.Background(), tt.args)

			assert.ErrorIs(t, err, ErrUsage)
			assert.Empty(t, out.String())
			assert.NotEmpty(t, errOut.String())
		})
	}
}

func TestApp_Help(t *testing.T) {
	app, _, errOut := newTestApp(&mockGateway{})

	require.NoError(t, app.Run(context.Background(), []string{"help"}))
	assert.Contains(t, errOut.String(), "payctl")
}

func TestApp_Wait(t *testing.T) {
	t.Run("до финального статуса", func(t *testing.T) {
		calls := 0
		gw := &mockGateway{
			StatusFunc: func(context.Context, string) (json.RawMessage, error) {
				calls++
				if calls < 3 {
					return json.RawMessage(`{"orderId":"X","status":"pending"}`), nil
				}
				return json.RawMessage(`{"orderId":"X","status":"success"}`), nil
			},
		}
		app, out, _ := newTestApp(gw)

		err := app.Run(context.Background(), []string{"wait", "X"})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, out.String(), `"status":"success"`)
	})

	t.Run("таймаут", func(t *testing.T) {
		gw := &mockGateway{
			StatusFunc: func(context.Context, string) (json.RawMessage, error) {
				return json.RawMessage(`{"orderId":"X","status":"pending"}`), nil
			},
		}
		app, out, _ := newTestApp(gw)

		err := app.Run(context.Background(), []string{"wait", "-timeout", "20ms", "X"})

		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUsage))
		assert.Empty(t, out.String())
	})
}
