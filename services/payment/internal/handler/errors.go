// Package handler содержит HTTP обработчики Payment API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/photo-payments/pkg/logger"
	"example.com/photo-payments/services/payment/internal/domain"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorMapping — HTTP статус и код ошибки для доменной ошибки.
type errorMapping struct {
	target error
	status int
	code   string
}

// Порядок важен: первая подходящая ошибка определяет ответ.
var errorMappings = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_argument"},
	{domain.ErrInvalidServiceType, http.StatusBadRequest, "invalid_argument"},
	{domain.ErrInvalidNotification, http.StatusBadRequest, "invalid_notification"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrOrderCompleted, http.StatusConflict, "order_completed"},
	{domain.ErrOrderClosed, http.StatusConflict, "order_closed"},
	{domain.ErrPaymentNotConfirmed, http.StatusConflict, "payment_not_confirmed"},
	{domain.ErrInvalidTransition, http.StatusConflict, "conflict"},
	{domain.ErrProviderUnavailable, http.StatusBadGateway, "provider_unavailable"},
}

// HandleServiceError преобразует ошибку сервиса в HTTP ответ.
func HandleServiceError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				log.Error().Err(err).Str("method", method).Msg("Ошибка платёжного провайдера")
			}
			c.JSON(m.status, ErrorResponse{
				Error:   m.code,
				Message: m.target.Error(),
			})
			return
		}
	}

	log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Внутренняя ошибка сервера",
	})
}

// badRequest отвечает 400 на невалидное тело запроса.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}
