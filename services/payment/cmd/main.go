// Payment API — HTTP сервис платёжных заказов на AI-фотоуслуги.
// Создаёт заказы у провайдера (Alipay, Stripe или fake), отдаёт статус,
// принимает уведомления провайдера. Изменения статусов пишутся в outbox,
// OutboxWorker публикует их в Kafka с гарантией at-least-once.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"example.com/photo-payments/pkg/config"
	dbpkg "example.com/photo-payments/pkg/db"
	"example.com/photo-payments/pkg/healthcheck"
	"example.com/photo-payments/pkg/kafka"
	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/pkg/metrics"
	"example.com/photo-payments/pkg/outbox"
	"example.com/photo-payments/pkg/tracing"
	"example.com/photo-payments/services/payment/internal/domain"
	"example.com/photo-payments/services/payment/internal/handler"
	"example.com/photo-payments/services/payment/internal/middleware"
	"example.com/photo-payments/services/payment/internal/provider"
	"example.com/photo-payments/services/payment/internal/repository"
	"example.com/photo-payments/services/payment/internal/service"
)

const serviceName = "payment-api"

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})
	log := logger.With().Str("service", serviceName).Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("addr", cfg.HTTP.Addr()).
		Str("provider", cfg.Payment.Provider).
		Msg("Запуск Payment API")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    serviceName,
		Environment:    cfg.App.Env,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	if err := dbpkg.Migrate(db, &repository.OrderModel{}, &outbox.Model{}); err != nil {
		log.Fatal().Err(err).Msg("Ошибка миграции")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	rdb, err := dbpkg.ConnectRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()
	log.Info().Msg("Подключение к Redis установлено")

	readinessCheck := healthcheck.Composite(
		healthcheck.MySQL(db),
		healthcheck.Redis(rdb),
	)

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			serviceName,
			metrics.WithReadinessCheck(readinessCheck),
		)
		metricsWg.Add(1)
		go func() {
			defer metricsWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Инициализация бизнес-логики ===

	payProvider, err := provider.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации платёжного провайдера")
	}

	outboxRepo := outbox.NewRepository(db, domain.AggregateType)
	orderRepo := repository.NewOrderRepository(db, outboxRepo)
	paymentService := service.NewPaymentService(orderRepo, payProvider, rdb, service.Config{
		Currency:   cfg.Payment.Currency,
		Topic:      cfg.Kafka.Topic,
		PendingTTL: cfg.Payment.PendingTTL,
		StatusTTL:  cfg.Payment.StatusTTL,
	})

	// Контекст для graceful shutdown фоновых воркеров
	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	var workersWg sync.WaitGroup
	var kafkaProducer *kafka.Producer

	if len(cfg.Kafka.Brokers) > 0 {
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Инициализация Kafka")

		if err := kafka.EnsureTopics(cfg.Kafka.Brokers, kafka.DefaultTopics(cfg.Kafka.Topic)); err != nil {
			log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
		}

		kafkaProducer, err = kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
		}

		// Outbox Worker: таблица outbox → Kafka
		outboxWorker := outbox.NewWorker(outboxRepo, kafkaProducer, outbox.DefaultWorkerConfig(), "payment")
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Паника в Payment Outbox Worker")
				}
			}()
			outboxWorker.Run(ctx)
		}()
	} else {
		log.Warn().Msg("Kafka не настроена — события платежей копятся в outbox")
	}

	// Закрытие просроченных pending заказов
	workersWg.Add(1)
	go func() {
		defer workersWg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Паника в проверке просроченных заказов")
			}
		}()
		service.RunSweeper(ctx, paymentService, cfg.Payment.SweepPeriod)
	}()

	// === HTTP сервер ===

	var rateLimitMW *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimitMW = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			Redis:  rdb,
			Limit:  cfg.RateLimit.RequestsLimit,
			Window: cfg.RateLimit.Window,
		})
	}

	router := handler.NewRouter(handler.RouterConfig{
		Service:        paymentService,
		RateLimitMW:    rateLimitMW,
		TracingMW:      middleware.NewTracingMiddleware(),
		ReadinessCheck: handler.ReadinessChecker(readinessCheck),
		Debug:          cfg.IsDevelopment(),
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP сервер запущен")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Сначала перестаём принимать запросы, затем останавливаем воркеры
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}

	cancel()
	workersWg.Wait()

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
		}
	}

	if err := dbpkg.Close(db); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия MySQL")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
		metricsWg.Wait()
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Payment API остановлен")
}
