package provider

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/photo-payments/pkg/circuitbreaker"
	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/services/payment/internal/domain"
)

const (
	alipayGatewayProduction = "https://openapi.alipay.com/gateway.do"
	alipayGatewaySandbox    = "https://openapi-sandbox.dl.alipaydev.com/gateway.do"

	alipayCodeSuccess        = "10000"
	alipaySubCodeNotExist    = "ACQ.TRADE_NOT_EXIST"
	alipayTimestampLayout    = "2006-01-02 15:04:05"
	alipayProductCodePagePay = "FAST_INSTANT_TRADE_PAY"
)

// AlipayConfig — параметры приложения Alipay.
type AlipayConfig struct {
	AppID      string
	PrivateKey string // ключ приложения для подписи запросов
	PublicKey  string // публичный ключ Alipay для проверки ответов и уведомлений
	ReturnURL  string
	NotifyURL  string
	Sandbox    bool
	GatewayURL string // переопределяет адрес шлюза (тесты)
}

// Alipay — провайдер Alipay (page pay, RSA2).
type Alipay struct {
	cfg        AlipayConfig
	gateway    string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	httpClient *http.Client
	now        func() time.Time
}

// NewAlipay разбирает ключи и создаёт провайдера.
// Запросы к шлюзу идут через circuit breaker.
func NewAlipay(cfg AlipayConfig) (*Alipay, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("alipay: не задан app_id")
	}
	privateKey, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("alipay: %w", err)
	}
	publicKey, err := ParsePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("alipay: %w", err)
	}

	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = alipayGatewayProduction
		if cfg.Sandbox {
			gateway = alipayGatewaySandbox
		}
	}

	breaker := circuitbreaker.New("alipay")
	return &Alipay{
		cfg:        cfg,
		gateway:    gateway,
		privateKey: privateKey,
		publicKey:  publicKey,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: breaker.RoundTripper(http.DefaultTransport),
		},
		now: time.Now,
	}, nil
}

func (a *Alipay) Name() string { return "alipay" }

// CreatePayment формирует подписанную ссылку alipay.trade.page.pay.
// Сделка у Alipay появится, когда пользователь откроет страницу оплаты.
func (a *Alipay) CreatePayment(_ context.Context, order *domain.Order) (*Payment, error) {
	biz := map[string]string{
		"out_trade_no": order.ID,
		"total_amount": order.Amount.StringFixed(2),
		"subject":      Subject(order.ServiceType),
		"product_code": alipayProductCodePagePay,
	}

	params, err := a.commonParams("alipay.trade.page.pay", biz)
	if err != nil {
		return nil, err
	}
	if a.cfg.ReturnURL != "" {
		params.Set("return_url", a.cfg.ReturnURL)
	}
	if a.cfg.NotifyURL != "" {
		params.Set("notify_url", a.cfg.NotifyURL)
	}
	if err := a.sign(params); err != nil {
		return nil, err
	}

	return &Payment{
		ProviderRef: order.ID,
		PayURL:      a.gateway + "?" + params.Encode(),
	}, nil
}

type alipayTradeResponse struct {
	Code        string `json:"code"`
	Msg         string `json:"msg"`
	SubCode     string `json:"sub_code"`
	SubMsg      string `json:"sub_msg"`
	TradeNo     string `json:"trade_no"`
	OutTradeNo  string `json:"out_trade_no"`
	TradeStatus string `json:"trade_status"`
}

// QueryTrade вызывает alipay.trade.query.
func (a *Alipay) QueryTrade(ctx context.Context, order *domain.Order) (*TradeResult, error) {
	resp, err := a.call(ctx, "alipay.trade.query", map[string]string{"out_trade_no": order.ID})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Code == alipayCodeSuccess:
		return &TradeResult{Status: mapAlipayTradeStatus(resp.TradeStatus), RawStatus: resp.TradeStatus}, nil
	case resp.SubCode == alipaySubCodeNotExist:
		// Пользователь ещё не открыл страницу оплаты
		return &TradeResult{Status: TradePending, RawStatus: resp.SubCode}, nil
	default:
		return nil, fmt.Errorf("alipay.trade.query: %s %s", resp.Code, resp.SubMsg)
	}
}

// CloseTrade вызывает alipay.trade.close.
func (a *Alipay) CloseTrade(ctx context.Context, order *domain.Order) error {
	resp, err := a.call(ctx, "alipay.trade.close", map[string]string{"out_trade_no": order.ID})
	if err != nil {
		return err
	}
	if resp.Code == alipayCodeSuccess || resp.SubCode == alipaySubCodeNotExist {
		return nil
	}
	return fmt.Errorf("alipay.trade.close: %s %s", resp.Code, resp.SubMsg)
}

// VerifyNotification проверяет RSA2 подпись асинхронного уведомления.
func (a *Alipay) VerifyNotification(ctx context.Context, req *NotificationRequest) (*Notification, error) {
	form := req.Form
	signature := form.Get("sign")
	if signature == "" {
		return nil, fmt.Errorf("%w: нет подписи", ErrInvalidSignature)
	}
	if err := rsa2Verify(signContent(form, "sign", "sign_type"), signature, a.publicKey); err != nil {
		return nil, err
	}
	if appID := form.Get("app_id"); appID != "" && appID != a.cfg.AppID {
		return nil, fmt.Errorf("%w: чужой app_id %s", ErrInvalidSignature, appID)
	}

	orderID := form.Get("out_trade_no")
	if orderID == "" {
		return nil, fmt.Errorf("%w: нет out_trade_no", ErrInvalidSignature)
	}

	raw := form.Get("trade_status")
	logger.Ctx(ctx).Debug().
		Str("order_id", orderID).
		Str("trade_status", raw).
		Msg("Уведомление Alipay проверено")

	return &Notification{
		OrderID:     orderID,
		ProviderRef: form.Get("trade_no"),
		Trade:       TradeResult{Status: mapAlipayTradeStatus(raw), RawStatus: raw},
	}, nil
}

func mapAlipayTradeStatus(s string) TradeStatus {
	switch s {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return TradeSuccess
	case "TRADE_CLOSED", "TRADE_FAILED":
		return TradeFailed
	default:
		return TradePending
	}
}

// =============================================================================
// Вызов шлюза
// =============================================================================

func (a *Alipay) commonParams(method string, biz map[string]string) (url.Values, error) {
	bizContent, err := json.Marshal(biz)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("app_id", a.cfg.AppID)
	params.Set("method", method)
	params.Set("format", "JSON")
	params.Set("charset", "utf-8")
	params.Set("sign_type", "RSA2")
	params.Set("timestamp", a.now().Format(alipayTimestampLayout))
	params.Set("version", "1.0")
	params.Set("biz_content", string(bizContent))
	return params, nil
}

func (a *Alipay) sign(params url.Values) error {
	sig, err := rsa2Sign(signContent(params, "sign"), a.privateKey)
	if err != nil {
		return fmt.Errorf("ошибка подписи запроса alipay: %w", err)
	}
	params.Set("sign", sig)
	return nil
}

func (a *Alipay) call(ctx context.Context, method string, biz map[string]string) (*alipayTradeResponse, error) {
	params, err := a.commonParams(method, biz)
	if err != nil {
		return nil, err
	}
	if err := a.sign(params); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.gateway, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: ошибка чтения ответа: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", method, resp.StatusCode)
	}

	// Ответ лежит в поле <method с "_" вместо ".">_response
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: некорректный ответ: %w", method, err)
	}
	key := strings.ReplaceAll(method, ".", "_") + "_response"
	raw, ok := envelope[key]
	if !ok {
		return nil, fmt.Errorf("%s: в ответе нет %s", method, key)
	}

	var out alipayTradeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: некорректный ответ: %w", method, err)
	}
	return &out, nil
}
