// Package domain содержит бизнес-сущности Payment Service.
package domain

import "errors"

// Доменные ошибки Payment Service.
var (
	// ErrOrderNotFound — платёжный заказ не найден.
	ErrOrderNotFound = errors.New("платёжный заказ не найден")

	// ErrInvalidTransition — недопустимый переход состояния.
	ErrInvalidTransition = errors.New("недопустимый переход состояния заказа")

	// ErrInvalidAmount — некорректная сумма.
	ErrInvalidAmount = errors.New("сумма должна быть больше нуля и иметь не более двух знаков после запятой")

	// ErrInvalidServiceType — не указан тип услуги.
	ErrInvalidServiceType = errors.New("тип услуги обязателен")

	// ErrOrderCompleted — заказ уже оплачен, отмена невозможна.
	ErrOrderCompleted = errors.New("заказ уже оплачен")

	// ErrOrderClosed — заказ отменён или не оплачен, подтверждение невозможно.
	ErrOrderClosed = errors.New("заказ закрыт")

	// ErrPaymentNotConfirmed — провайдер не подтвердил оплату.
	ErrPaymentNotConfirmed = errors.New("оплата не подтверждена провайдером")

	// ErrProviderUnavailable — ошибка обращения к платёжному провайдеру.
	ErrProviderUnavailable = errors.New("платёжный провайдер недоступен")

	// ErrInvalidNotification — подпись или содержимое уведомления провайдера неверны.
	ErrInvalidNotification = errors.New("некорректное уведомление провайдера")
)
