package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/photo-payments/pkg/metrics"
	"example.com/photo-payments/services/payment/internal/middleware"
)

// serviceName — имя сервиса в метриках и спанах.
const serviceName = "payment-api"

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Router — HTTP роутер Payment API.
type Router struct {
	engine         *gin.Engine
	paymentHandler *PaymentHandler
	rateLimitMW    *middleware.RateLimitMiddleware
	tracingMW      *middleware.TracingMiddleware
	readinessCheck ReadinessChecker
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Service        PaymentService
	RateLimitMW    *middleware.RateLimitMiddleware // nil отключает rate limiting
	TracingMW      *middleware.TracingMiddleware
	CORS           *middleware.CORSConfig // nil — DefaultCORSConfig
	ReadinessCheck ReadinessChecker       // опциональная проверка готовности для /readyz
	Debug          bool                   // Режим отладки Gin
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	corsCfg := middleware.DefaultCORSConfig()
	if cfg.CORS != nil {
		corsCfg = *cfg.CORS
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(corsCfg))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(metrics.GinMetricsMiddleware(serviceName))

	r := &Router{
		engine:         engine,
		paymentHandler: NewPaymentHandler(cfg.Service),
		rateLimitMW:    cfg.RateLimitMW,
		tracingMW:      cfg.TracingMW,
		readinessCheck: cfg.ReadinessCheck,
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	if r.tracingMW != nil {
		r.engine.Use(r.tracingMW.Handle())
	}

	// Health endpoints (без rate limiting)
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/healthz", r.livenessCheck)
	r.engine.GET("/readyz", r.readinessCheckHandler)

	api := r.engine.Group("/api")

	// Уведомления провайдера не ограничиваем: их повторы нельзя терять
	api.POST("/payment/notify", r.paymentHandler.Notify)

	payment := api.Group("/payment")
	if r.rateLimitMW != nil {
		payment.Use(r.rateLimitMW.Handle())
	}
	{
		payment.POST("/create", r.paymentHandler.CreatePayment)
		payment.GET("/status/:orderId", r.paymentHandler.GetStatus)
		payment.POST("/success", r.paymentHandler.ConfirmSuccess)
		payment.POST("/cancel", r.paymentHandler.Cancel)
	}
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
	})
}

// livenessCheck — liveness probe: процесс отвечает.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler — readiness probe: MySQL и Redis доступны.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
