// payctl — консольный клиент Payment API.
//
//	payctl create -type premium -amount 99.00
//	payctl wait <orderId>
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"example.com/photo-payments/pkg/circuitbreaker"
	"example.com/photo-payments/pkg/config"
	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/pkg/paymentclient"
	"example.com/photo-payments/services/payctl/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		return 1
	}

	// stdout занят ответами сервера, диагностика уходит в stderr
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	breaker := circuitbreaker.New("payment-api")
	httpClient := &http.Client{Transport: breaker.RoundTripper(http.DefaultTransport)}

	client := paymentclient.New(
		paymentclient.NewHTTPTransport(cfg.BaseURL, paymentclient.WithHTTPClient(httpClient)),
		paymentclient.WithLogger(log),
		paymentclient.WithNotifier(paymentclient.NewWriterNotifier(os.Stderr)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Один correlation_id на весь запуск: его видно в логах сервера
	id := uuid.New().String()
	ctx = logger.NewContextWithIDs(ctx, id, id)

	app := &cli.App{
		Gateway:      client,
		Out:          os.Stdout,
		Err:          os.Stderr,
		PollInterval: cfg.PollInterval,
	}

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		log.Debug().Err(err).Msg("Команда завершилась с ошибкой")
		return 1
	}
	return 0
}
