// Package circuitbreaker — Circuit Breaker для исходящих HTTP вызовов.
// Используется клиентом Payment API и HTTP-провайдерами платежей, чтобы при
// недоступности удалённой стороны отказывать сразу, а не ждать таймаута.
//
// Состояния:
//   - Closed: нормальная работа, запросы проходят
//   - Open: удалённая сторона недоступна, запросы отклоняются мгновенно
//   - Half-Open: пробный период, пропускаем MaxRequests запросов
//
// Использование:
//
//	cb := circuitbreaker.New("alipay")
//	httpClient := &http.Client{Transport: cb.RoundTripper(http.DefaultTransport)}
package circuitbreaker

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/photo-payments/pkg/logger"
)

// ErrOpen возвращается, пока breaker открыт или в Half-Open исчерпан лимит пробных запросов.
var ErrOpen = errors.New("удалённый сервис временно недоступен (circuit breaker)")

// Settings — настройки Circuit Breaker.
type Settings struct {
	MaxRequests  uint32        // Макс. запросов в Half-Open (по умолчанию 1)
	Interval     time.Duration // Интервал сброса счётчиков в Closed
	Timeout      time.Duration // Время в Open до перехода в Half-Open
	FailureRatio float64       // Доля ошибок для перехода в Open
	MinRequests  uint32        // Мин. запросов для расчёта доли
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Breaker — обёртка над gobreaker с логированием смены состояний.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[*http.Response]
	name string
}

// New создаёт Circuit Breaker с настройками по умолчанию.
func New(name string) *Breaker {
	return NewWithSettings(name, DefaultSettings())
}

// NewWithSettings создаёт Circuit Breaker с пользовательскими настройками.
func NewWithSettings(name string, s Settings) *Breaker {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log := logger.With().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Logger()

			switch to {
			case gobreaker.StateOpen:
				log.Warn().Msg("Circuit Breaker ОТКРЫТ — сервис недоступен")
			case gobreaker.StateHalfOpen:
				log.Info().Msg("Circuit Breaker ПОЛУОТКРЫТ — пробуем восстановить")
			case gobreaker.StateClosed:
				log.Info().Msg("Circuit Breaker ЗАКРЫТ — сервис восстановлен")
			}
		},
	})

	return &Breaker{cb: cb, name: name}
}

// State возвращает текущее состояние breaker.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name возвращает имя breaker.
func (b *Breaker) Name() string {
	return b.name
}

// RoundTripper оборачивает next в Circuit Breaker.
// Сбоем считаются сетевые ошибки и ответы 5xx; 4xx — бизнес-ответ, breaker его не учитывает.
// Ответ 5xx возвращается вызывающему как есть, тело не закрывается.
func (b *Breaker) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		var serverResp *http.Response

		resp, err := b.cb.Execute(func() (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil {
				return nil, err
			}
			if isFailureStatus(resp.StatusCode) {
				serverResp = resp
				return nil, errServerStatus
			}
			return resp, nil
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, ErrOpen
		case errors.Is(err, errServerStatus):
			return serverResp, nil
		}
		return resp, err
	})
}

// errServerStatus — внутренний маркер 5xx для учёта в breaker.
var errServerStatus = errors.New("server error status")

func isFailureStatus(code int) bool {
	return code >= http.StatusInternalServerError
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
