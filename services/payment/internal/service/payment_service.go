// Package service содержит бизнес-логику Payment Service.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/pkg/metrics"
	"example.com/photo-payments/pkg/outbox"
	"example.com/photo-payments/services/payment/internal/domain"
	"example.com/photo-payments/services/payment/internal/provider"
	"example.com/photo-payments/services/payment/internal/repository"
)

// =============================================================================
// Конфигурация
// =============================================================================

const (
	// statusKeyPrefix — префикс ключей кэша финальных статусов в Redis.
	statusKeyPrefix = "payment:status:"

	// staleBatchSize — сколько просроченных заказов обрабатывать за один проход.
	staleBatchSize = 100

	expiredReason = "истёк срок оплаты"
)

// Config — настройки сервиса.
type Config struct {
	Currency   string        // валюта заказов
	Topic      string        // Kafka топик событий
	PendingTTL time.Duration // через сколько pending заказ считается просроченным
	StatusTTL  time.Duration // время жизни кэша финальных статусов
}

// =============================================================================
// Интерфейс сервиса
// =============================================================================

// PaymentService — бизнес-логика платёжных заказов.
type PaymentService interface {
	// CreateOrder создаёт заказ у провайдера и сохраняет его в статусе pending.
	CreateOrder(ctx context.Context, serviceType string, amount decimal.Decimal) (*domain.Order, error)

	// GetStatus возвращает заказ; для pending сверяется с провайдером.
	GetStatus(ctx context.Context, orderID string) (*domain.Order, error)

	// ConfirmSuccess подтверждает оплату после проверки у провайдера.
	// Повторный вызов для оплаченного заказа возвращает его без ошибки.
	ConfirmSuccess(ctx context.Context, orderID string) (*domain.Order, error)

	// Cancel закрывает сделку у провайдера и отменяет заказ.
	// Заказ, оплаченный у провайдера без уведомления, переходит в success и даёт ErrOrderCompleted.
	// Повторный вызов для отменённого заказа возвращает его без ошибки.
	Cancel(ctx context.Context, orderID string) (*domain.Order, error)

	// HandleNotification применяет проверенное уведомление провайдера.
	HandleNotification(ctx context.Context, req *provider.NotificationRequest) error

	// ExpireStale закрывает pending заказы старше PendingTTL. Возвращает число закрытых.
	// Заказ, по которому провайдер не ответил или не закрыл сделку, остаётся pending.
	ExpireStale(ctx context.Context) (int, error)
}

// =============================================================================
// Реализация сервиса
// =============================================================================

type paymentService struct {
	repo     repository.OrderRepository
	provider provider.Provider
	redis    *redis.Client
	cfg      Config
	now      func() time.Time
}

// NewPaymentService создаёт сервис платежей.
func NewPaymentService(repo repository.OrderRepository, p provider.Provider, redisClient *redis.Client, cfg Config) PaymentService {
	return &paymentService{
		repo:     repo,
		provider: p,
		redis:    redisClient,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *paymentService) CreateOrder(ctx context.Context, serviceType string, amount decimal.Decimal) (*domain.Order, error) {
	log := logger.FromContext(ctx)

	order, err := domain.NewOrder(uuid.New().String(), serviceType, amount, s.cfg.Currency, s.provider.Name())
	if err != nil {
		return nil, err
	}

	payment, err := s.provider.CreatePayment(ctx, order)
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Str("provider", s.provider.Name()).
			Msg("Ошибка создания платежа у провайдера")
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	order.ProviderRef = payment.ProviderRef
	order.PayURL = payment.PayURL

	event, err := s.newEvent(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, order, event); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("Ошибка сохранения заказа")
		return nil, fmt.Errorf("ошибка сохранения заказа: %w", err)
	}

	metrics.RecordTransition(order.Provider, string(order.Status))
	log.Info().
		Str("order_id", order.ID).
		Str("service_type", order.ServiceType).
		Str("amount", order.Amount.StringFixed(2)).
		Str("provider", order.Provider).
		Msg("Платёжный заказ создан")

	return order, nil
}

func (s *paymentService) GetStatus(ctx context.Context, orderID string) (*domain.Order, error) {
	if cached := s.cachedOrder(ctx, orderID); cached != nil {
		return cached, nil
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		s.cacheOrder(ctx, order)
		return order, nil
	}

	trade, err := s.provider.QueryTrade(ctx, order)
	if err != nil {
		// Статус из БД остаётся верным, клиент спросит ещё раз
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).
			Msg("Не удалось запросить статус у провайдера")
		return order, nil
	}
	return s.applyTrade(ctx, order, trade)
}

func (s *paymentService) ConfirmSuccess(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusSuccess:
		return order, nil
	case domain.OrderStatusFailed, domain.OrderStatusCancelled:
		return nil, domain.ErrOrderClosed
	}

	trade, err := s.provider.QueryTrade(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	order, err = s.applyTrade(ctx, order, trade)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusSuccess:
		return order, nil
	case domain.OrderStatusPending:
		return nil, domain.ErrPaymentNotConfirmed
	default:
		return nil, domain.ErrOrderClosed
	}
}

func (s *paymentService) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	log := logger.FromContext(ctx)

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusCancelled:
		return order, nil
	case domain.OrderStatusSuccess:
		return nil, domain.ErrOrderCompleted
	case domain.OrderStatusFailed:
		return nil, domain.ErrOrderClosed
	}

	if err := s.provider.CloseTrade(ctx, order); err != nil {
		// Сделка могла быть оплачена без уведомления: такой заказ не отменяется
		if trade, qErr := s.provider.QueryTrade(ctx, order); qErr == nil && trade.Status == provider.TradeSuccess {
			if _, err := s.applyTrade(ctx, order, trade); err != nil {
				return nil, err
			}
			log.Info().Str("order_id", orderID).Msg("Отмена отклонена: заказ оплачен у провайдера")
			return nil, domain.ErrOrderCompleted
		}

		log.Error().Err(err).Str("order_id", orderID).Msg("Ошибка закрытия сделки у провайдера")
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	if err := order.Cancel(); err != nil {
		return nil, err
	}
	if err := s.saveTransition(ctx, order); err != nil {
		return s.resolveConflict(ctx, orderID, err, domain.OrderStatusCancelled)
	}

	log.Info().Str("order_id", orderID).Msg("Платёжный заказ отменён")
	return order, nil
}

func (s *paymentService) HandleNotification(ctx context.Context, req *provider.NotificationRequest) error {
	log := logger.FromContext(ctx)

	n, err := s.provider.VerifyNotification(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("provider", s.provider.Name()).Msg("Уведомление провайдера отклонено")
		return fmt.Errorf("%w: %v", domain.ErrInvalidNotification, err)
	}

	order, err := s.repo.GetByID(ctx, n.OrderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		log.Debug().Str("order_id", order.ID).Str("status", string(order.Status)).
			Msg("Уведомление для завершённого заказа, пропускаем")
		return nil
	}

	if n.ProviderRef != "" && order.ProviderRef == "" {
		order.ProviderRef = n.ProviderRef
	}
	_, err = s.applyTrade(ctx, order, &n.Trade)
	return err
}

func (s *paymentService) ExpireStale(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	orders, err := s.repo.GetStalePending(ctx, s.cfg.PendingTTL, staleBatchSize)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения просроченных заказов: %w", err)
	}

	expired := 0
	for _, order := range orders {
		// Без ответа провайдера заказ не трогаем, повторим на следующем проходе
		trade, err := s.provider.QueryTrade(ctx, order)
		if err != nil {
			log.Warn().Err(err).Str("order_id", order.ID).Msg("Не удалось запросить статус просроченного заказа")
			continue
		}

		// Оплата могла пройти без уведомления
		if trade.Status == provider.TradeSuccess {
			if _, err := s.applyTrade(ctx, order, trade); err != nil {
				log.Warn().Err(err).Str("order_id", order.ID).Msg("Ошибка применения оплаты")
			}
			continue
		}

		if err := s.provider.CloseTrade(ctx, order); err != nil {
			log.Warn().Err(err).Str("order_id", order.ID).Msg("Не удалось закрыть сделку просроченного заказа")
			continue
		}
		if err := order.Fail(expiredReason); err != nil {
			continue
		}
		if err := s.saveTransition(ctx, order); err != nil {
			log.Warn().Err(err).Str("order_id", order.ID).Msg("Ошибка закрытия просроченного заказа")
			continue
		}

		log.Info().Str("order_id", order.ID).Msg("Просроченный заказ помечен как failed")
		expired++
	}

	if expired > 0 {
		log.Info().Int("count", expired).Msg("Закрыто просроченных заказов")
	}
	return expired, nil
}

// RunSweeper вызывает ExpireStale каждые period до отмены ctx.
func RunSweeper(ctx context.Context, svc PaymentService, period time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ExpireStale(ctx); err != nil {
				log.Error().Err(err).Msg("Ошибка проверки просроченных заказов")
			}
		}
	}
}

// =============================================================================
// Вспомогательные методы
// =============================================================================

// applyTrade переводит pending заказ по статусу сделки у провайдера.
func (s *paymentService) applyTrade(ctx context.Context, order *domain.Order, trade *provider.TradeResult) (*domain.Order, error) {
	var err error
	switch trade.Status {
	case provider.TradeSuccess:
		err = order.MarkPaid(s.now())
	case provider.TradeFailed:
		err = order.Fail(trade.RawStatus)
	default:
		return order, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.saveTransition(ctx, order); err != nil {
		return s.resolveConflict(ctx, order.ID, err, order.Status)
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("status", string(order.Status)).
		Str("trade_status", trade.RawStatus).
		Msg("Статус заказа обновлён по данным провайдера")
	return order, nil
}

// saveTransition сохраняет переход из pending вместе с событием outbox.
func (s *paymentService) saveTransition(ctx context.Context, order *domain.Order) error {
	event, err := s.newEvent(ctx, order)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, order, domain.OrderStatusPending, event); err != nil {
		return err
	}

	metrics.RecordTransition(order.Provider, string(order.Status))
	s.cacheOrder(ctx, order)
	return nil
}

// resolveConflict обрабатывает параллельное изменение заказа: если заказ уже
// в нужном статусе, это успех.
func (s *paymentService) resolveConflict(ctx context.Context, orderID string, err error, want domain.OrderStatus) (*domain.Order, error) {
	if !errors.Is(err, domain.ErrInvalidTransition) {
		return nil, fmt.Errorf("ошибка сохранения статуса заказа: %w", err)
	}

	current, getErr := s.repo.GetByID(ctx, orderID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == want {
		return current, nil
	}
	return nil, err
}

func (s *paymentService) newEvent(ctx context.Context, order *domain.Order) (*outbox.Record, error) {
	return outbox.NewRecord(ctx, domain.AggregateType, order.ID,
		domain.EventTypeFor(order.Status), s.cfg.Topic, domain.NewOrderEvent(order))
}

func (s *paymentService) cachedOrder(ctx context.Context, orderID string) *domain.Order {
	data, err := s.redis.Get(ctx, statusKeyPrefix+orderID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn().Err(err).Msg("Ошибка чтения кэша статусов")
		}
		return nil
	}

	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil
	}
	return &order
}

// cacheOrder кэширует только финальные статусы: они больше не меняются.
func (s *paymentService) cacheOrder(ctx context.Context, order *domain.Order) {
	if !order.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, statusKeyPrefix+order.ID, data, s.cfg.StatusTTL).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("Ошибка записи кэша статусов")
	}
}
