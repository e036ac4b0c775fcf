// Package cli — команды payctl поверх PaymentClient.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"example.com/photo-payments/pkg/paymentclient"
)

// ErrUsage — неверные аргументы командной строки.
var ErrUsage = errors.New("неверные аргументы")

const usage = `Использование: payctl <команда> [флаги]

Команды:
  create -type <услуга> -amount <сумма>   создать платёжный заказ
  status <orderId>                        статус заказа
  success <orderId>                       подтвердить оплату
  cancel <orderId>                        отменить заказ
  wait [-timeout 10m] <orderId>           ждать финального статуса
`

// App — CLI приложение.
type App struct {
	Gateway      paymentclient.PaymentGateway
	Out          io.Writer     // ответы сервера
	Err          io.Writer     // справка и ошибки аргументов
	PollInterval time.Duration // интервал опроса для wait
}

// Run выполняет команду из args (без имени программы).
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.Err, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create":
		return a.create(ctx, rest)
	case "status":
		return a.withOrderID(rest, func(id string) (json.RawMessage, error) {
			return a.Gateway.CheckPaymentStatus(ctx, id)
		})
	case "success":
		return a.withOrderID(rest, func(id string) (json.RawMessage, error) {
			return a.Gateway.HandlePaymentSuccess(ctx, id)
		})
	case "cancel":
		return a.withOrderID(rest, func(id string) (json.RawMessage, error) {
			return a.Gateway.CancelPayment(ctx, id)
		})
	case "wait":
		return a.wait(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.Err, usage)
		return nil
	default:
		fmt.Fprintf(a.Err, "Неизвестная команда %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) create(ctx context.Context, args []string) error {
	fs := a.flagSet("create")
	serviceType := fs.String("type", "", "тип услуги (basic, premium ...)")
	amountStr := fs.String("amount", "", "сумма заказа")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if *serviceType == "" || *amountStr == "" {
		fmt.Fprintln(a.Err, "create: нужны -type и -amount")
		return ErrUsage
	}

	// Сумму проверяет сервер, здесь только разбор числа
	amount, err := strconv.ParseFloat(*amountStr, 64)
	if err != nil {
		fmt.Fprintf(a.Err, "create: сумма %q не число\n", *amountStr)
		return ErrUsage
	}

	body, err := a.Gateway.CreatePaymentOrder(ctx, *serviceType, amount)
	if err != nil {
		return err
	}
	return a.print(body)
}

func (a *App) wait(ctx context.Context, args []string) error {
	fs := a.flagSet("wait")
	timeout := fs.Duration("timeout", 10*time.Minute, "максимальное время ожидания")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.Err, "wait: нужен orderId")
		return ErrUsage
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(a.PollInterval), 1)
	body, err := paymentclient.WaitForCompletion(ctx, a.Gateway, fs.Arg(0), limiter)
	if err != nil {
		return err
	}
	return a.print(body)
}

func (a *App) withOrderID(args []string, call func(orderID string) (json.RawMessage, error)) error {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(a.Err, "нужен ровно один orderId")
		return ErrUsage
	}

	body, err := call(args[0])
	if err != nil {
		return err
	}
	return a.print(body)
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Err)
	return fs
}

// print выводит ответ сервера без изменений.
func (a *App) print(body json.RawMessage) error {
	if _, err := a.Out.Write(body); err != nil {
		return err
	}
	_, err := fmt.Fprintln(a.Out)
	return err
}
