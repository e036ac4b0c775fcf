package provider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/photo-payments/services/payment/internal/domain"
)

// =============================================================================
// Тестовые ключи
// =============================================================================

type testKeys struct {
	appKey        *rsa.PrivateKey
	alipayKey     *rsa.PrivateKey
	appPrivatePEM string
	alipayPubPEM  string
}

func newTestKeys(t *testing.T) testKeys {
	t.Helper()

	appKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	alipayKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	appDER, err := x509.MarshalPKCS8PrivateKey(appKey)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&alipayKey.PublicKey)
	require.NoError(t, err)

	return testKeys{
		appKey:        appKey,
		alipayKey:     alipayKey,
		appPrivatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: appDER})),
		alipayPubPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
	}
}

func newTestAlipay(t *testing.T, keys testKeys, gateway string) *Alipay {
	t.Helper()

	a, err := NewAlipay(AlipayConfig{
		AppID:      "2021000000000000",
		PrivateKey: keys.appPrivatePEM,
		PublicKey:  keys.alipayPubPEM,
		ReturnURL:  "http://localhost:8081/complete",
		NotifyURL:  "http://localhost:8080/api/payment/notify",
		Sandbox:    true,
		GatewayURL: gateway,
	})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func testAlipayOrder() *domain.Order {
	return &domain.Order{
		ID:          "order-1",
		ServiceType: "premium",
		Amount:      decimal.NewFromInt(9900),
		Currency:    "CNY",
		Status:      domain.OrderStatusPending,
	}
}

// alipayGateway — тестовый шлюз, отвечающий заданным JSON на метод.
func alipayGateway(t *testing.T, keys testKeys, responses map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		// Запрос подписан ключом приложения
		content := signContent(r.PostForm, "sign")
		assert.NoError(t, rsa2Verify(content, r.PostForm.Get("sign"), &keys.appKey.PublicKey))

		method := r.PostForm.Get("method")
		body, ok := responses[method]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = fmt.Fprint(w, body)
	}))
}

// =============================================================================
// Тесты
// =============================================================================

func TestAlipay_CreatePayment(t *testing.T) {
	keys := newTestKeys(t)
	a := newTestAlipay(t, keys, "")

	payment, err := a.CreatePayment(context.Background(), testAlipayOrder())

	require.NoError(t, err)
	assert.Equal(t, "order-1", payment.ProviderRef)

	u, err := url.Parse(payment.PayURL)
	require.NoError(t, err)
	assert.Equal(t, "openapi-sandbox.dl.alipaydev.com", u.Host)

	q := u.Query()
	assert.Equal(t, "alipay.trade.page.pay", q.Get("method"))
	assert.Equal(t, "RSA2", q.Get("sign_type"))
	assert.Equal(t, "2024-05-01 12:00:00", q.Get("timestamp"))
	assert.Equal(t, "http://localhost:8080/api/payment/notify", q.Get("notify_url"))

	var biz map[string]string
	require.NoError(t, json.Unmarshal([]byte(q.Get("biz_content")), &biz))
	assert.Equal(t, "order-1", biz["out_trade_no"])
	assert.Equal(t, "9900.00", biz["total_amount"])
	assert.Equal(t, "AI Photo Premium Service", biz["subject"])

	assert.NoError(t, rsa2Verify(signContent(q, "sign"), q.Get("sign"), &keys.appKey.PublicKey))
}

func TestAlipay_QueryTrade(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantStatus TradeStatus
		wantErr    bool
	}{
		{"TRADE_SUCCESS", `{"alipay_trade_query_response":{"code":"10000","trade_status":"TRADE_SUCCESS"},"sign":"x"}`, TradeSuccess, false},
		{"TRADE_FINISHED", `{"alipay_trade_query_response":{"code":"10000","trade_status":"TRADE_FINISHED"}}`, TradeSuccess, false},
		{"TRADE_CLOSED", `{"alipay_trade_query_response":{"code":"10000","trade_status":"TRADE_CLOSED"}}`, TradeFailed, false},
		{"WAIT_BUYER_PAY", `{"alipay_trade_query_response":{"code":"10000","trade_status":"WAIT_BUYER_PAY"}}`, TradePending, false},
		{"сделки ещё нет", `{"alipay_trade_query_response":{"code":"40004","sub_code":"ACQ.TRADE_NOT_EXIST"}}`, TradePending, false},
		{"ошибка шлюза", `{"alipay_trade_query_response":{"code":"40002","sub_msg":"invalid app_id"}}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := newTestKeys(t)
			server := alipayGateway(t, keys, map[string]string{"alipay.trade.query": tt.response})
			defer server.Close()

			result, err := newTestAlipay(t, keys, server.URL).QueryTrade(context.Background(), testAlipayOrder())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
		})
	}
}

func TestAlipay_CloseTrade(t *testing.T) {
	keys := newTestKeys(t)
	server := alipayGateway(t, keys, map[string]string{
		"alipay.trade.close": `{"alipay_trade_close_response":{"code":"40004","sub_code":"ACQ.TRADE_NOT_EXIST"}}`,
	})
	defer server.Close()

	err := newTestAlipay(t, keys, server.URL).CloseTrade(context.Background(), testAlipayOrder())

	assert.NoError(t, err)
}

func TestAlipay_VerifyNotification(t *testing.T) {
	keys := newTestKeys(t)
	a := newTestAlipay(t, keys, "")

	signed := func(form url.Values) url.Values {
		sig, err := rsa2Sign(signContent(form, "sign", "sign_type"), keys.alipayKey)
		require.NoError(t, err)
		form.Set("sign", sig)
		form.Set("sign_type", "RSA2")
		return form
	}

	t.Run("подпись верна", func(t *testing.T) {
		form := signed(url.Values{
			"app_id":       {"2021000000000000"},
			"out_trade_no": {"order-1"},
			"trade_no":     {"2024050122001"},
			"trade_status": {"TRADE_SUCCESS"},
		})

		n, err := a.VerifyNotification(context.Background(), &NotificationRequest{Form: form})

		require.NoError(t, err)
		assert.Equal(t, "order-1", n.OrderID)
		assert.Equal(t, "2024050122001", n.ProviderRef)
		assert.Equal(t, TradeSuccess, n.Trade.Status)
	})

	t.Run("данные подменены", func(t *testing.T) {
		form := signed(url.Values{
			"out_trade_no": {"order-1"},
			"trade_status": {"TRADE_CLOSED"},
		})
		form.Set("trade_status", "TRADE_SUCCESS")

		_, err := a.VerifyNotification(context.Background(), &NotificationRequest{Form: form})

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("нет подписи", func(t *testing.T) {
		_, err := a.VerifyNotification(context.Background(), &NotificationRequest{
			Form: url.Values{"out_trade_no": {"order-1"}},
		})

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("чужое приложение", func(t *testing.T) {
		form := signed(url.Values{
			"app_id":       {"other"},
			"out_trade_no": {"order-1"},
			"trade_status": {"TRADE_SUCCESS"},
		})

		_, err := a.VerifyNotification(context.Background(), &NotificationRequest{Form: form})

		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestSignContent(t *testing.T) {
	params := url.Values{
		"b":         {"2"},
		"a":         {"1"},
		"empty":     {""},
		"sign":      {"xxx"},
		"sign_type": {"RSA2"},
	}

	assert.Equal(t, "a=1&b=2&sign_type=RSA2", signContent(params, "sign"))
	assert.Equal(t, "a=1&b=2", signContent(params, "sign", "sign_type"))
}

func TestParseKeys_Base64WithoutHeaders(t *testing.T) {
	keys := newTestKeys(t)

	der, err := x509.MarshalPKCS8PrivateKey(keys.appKey)
	require.NoError(t, err)
	key, err := ParsePrivateKey(base64.StdEncoding.EncodeToString(der))
	require.NoError(t, err)
	assert.True(t, key.Equal(keys.appKey))

	pubDER, err := x509.MarshalPKIXPublicKey(&keys.alipayKey.PublicKey)
	require.NoError(t, err)
	pub, err := ParsePublicKey(base64.StdEncoding.EncodeToString(pubDER))
	require.NoError(t, err)
	assert.True(t, pub.Equal(&keys.alipayKey.PublicKey))

	_, err = ParsePrivateKey("not a key")
	assert.Error(t, err)
}

func TestNewAlipay_Validation(t *testing.T) {
	_, err := NewAlipay(AlipayConfig{})
	assert.Error(t, err)

	_, err = NewAlipay(AlipayConfig{AppID: "app", PrivateKey: "broken"})
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "AI Photo Premium Service", Subject("premium"))
	assert.Equal(t, "AI Photo  Service", Subject(""))
}
