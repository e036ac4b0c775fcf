package provider

import (
	"context"
	"fmt"
	"sync"

	"example.com/photo-payments/services/payment/internal/domain"
)

// FakeNotifySign — подпись, которую принимает Fake в уведомлениях.
const FakeNotifySign = "fake-sign"

// Fake — провайдер в памяти для разработки и тестов.
// С autoPay сделка считается оплаченной сразу после создания.
type Fake struct {
	mu      sync.Mutex
	trades  map[string]TradeStatus
	closed  map[string]bool
	autoPay bool
	baseURL string
}

// NewFake создаёт Fake.
func NewFake(autoPay bool) *Fake {
	return &Fake{
		trades:  make(map[string]TradeStatus),
		closed:  make(map[string]bool),
		autoPay: autoPay,
		baseURL: "https://pay.fake.local/checkout/",
	}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) CreatePayment(_ context.Context, order *domain.Order) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := TradePending
	if f.autoPay {
		status = TradeSuccess
	}
	f.trades[order.ID] = status

	return &Payment{ProviderRef: "fake-" + order.ID, PayURL: f.baseURL + order.ID}, nil
}

func (f *Fake) QueryTrade(_ context.Context, order *domain.Order) (*TradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.trades[order.ID]
	if !ok {
		return &TradeResult{Status: TradePending, RawStatus: "NOT_EXIST"}, nil
	}
	return &TradeResult{Status: status, RawStatus: string(status)}, nil
}

func (f *Fake) CloseTrade(_ context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.trades[order.ID] == TradeSuccess {
		return fmt.Errorf("fake: сделка %s уже оплачена", order.ID)
	}
	f.closed[order.ID] = true
	if _, ok := f.trades[order.ID]; ok {
		f.trades[order.ID] = TradeFailed
	}
	return nil
}

// VerifyNotification принимает форму out_trade_no, trade_status (success/failed/pending), sign.
func (f *Fake) VerifyNotification(_ context.Context, req *NotificationRequest) (*Notification, error) {
	if req.Form.Get("sign") != FakeNotifySign {
		return nil, ErrInvalidSignature
	}
	orderID := req.Form.Get("out_trade_no")
	if orderID == "" {
		return nil, fmt.Errorf("%w: нет out_trade_no", ErrInvalidSignature)
	}

	raw := req.Form.Get("trade_status")
	status := TradeStatus(raw)
	switch status {
	case TradeSuccess, TradeFailed, TradePending:
	default:
		status = TradePending
	}
	return &Notification{
		OrderID:     orderID,
		ProviderRef: "fake-" + orderID,
		Trade:       TradeResult{Status: status, RawStatus: raw},
	}, nil
}

// SetTradeStatus меняет статус сделки (имитация действий пользователя на странице оплаты).
func (f *Fake) SetTradeStatus(orderID string, status TradeStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades[orderID] = status
}

// Closed сообщает, закрывалась ли сделка.
func (f *Fake) Closed(orderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[orderID]
}
