package paymentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"example.com/photo-payments/pkg/logger"
)

const (
	// DefaultBasePath — общий префикс API платёжного сервера.
	DefaultBasePath = "/api"

	headerTraceID       = "X-Trace-ID"
	headerCorrelationID = "X-Correlation-ID"
)

var errInvalidJSON = errors.New("ответ сервера не является JSON")

// Request — один HTTP-вызов к платёжному API.
// Path задаётся относительно базового пути (например, "/payment/create").
type Request struct {
	Method string
	Path   string
	Body   any // nil — без тела
}

// Response — успешный ответ сервера.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Transport выполняет запрос. Любая неудача возвращается как *TransportError.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport — Transport поверх net/http.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPOption настраивает HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient задаёт http.Client (например, с circuit breaker в Transport).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.httpClient = c
	}
}

// NewHTTPTransport создаёт транспорт для сервера baseURL (например, "http://localhost:8080").
// Ко всем путям добавляется префикс /api. Таймаут не задаётся: используется
// поведение http.Client по умолчанию и контекст вызывающего.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/") + DefaultBasePath,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send выполняет запрос и возвращает тело ответа без изменений.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	fail := func(status int, body []byte, err error) (*Response, error) {
		return nil, &TransportError{Method: req.Method, Path: req.Path, StatusCode: status, Body: body, Err: err}
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fail(0, nil, fmt.Errorf("ошибка сериализации запроса: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.baseURL+req.Path, body)
	if err != nil {
		return fail(0, nil, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		httpReq.Header.Set(headerTraceID, traceID)
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		httpReq.Header.Set(headerCorrelationID, correlationID)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fail(0, nil, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, nil, fmt.Errorf("ошибка чтения ответа: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(resp.StatusCode, data, nil)
	}
	if !json.Valid(data) {
		return fail(resp.StatusCode, data, errInvalidJSON)
	}

	return &Response{StatusCode: resp.StatusCode, Body: json.RawMessage(data)}, nil
}
