// Package config — загрузка конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config — полная конфигурация Payment API.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Jaeger    JaegerConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Payment   PaymentConfig
	Alipay    AlipayConfig
	Stripe    StripeConfig
}

// AppConfig — общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"photo-payments"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// MySQLConfig — подключение к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"photo_payments"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig — подключение к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig — брокеры для публикации событий платежей.
// Пустой список отключает Outbox Worker.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Topic   string   `env:"KAFKA_PAYMENT_TOPIC" envDefault:"payment.events"`
}

// JaegerConfig — трассировка через OTLP.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"true"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"`
}

// OTLPEndpoint возвращает OTLP gRPC endpoint.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig — Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// PaymentConfig — бизнес-настройки платежей.
type PaymentConfig struct {
	Provider    string        `env:"PAYMENT_PROVIDER" envDefault:"fake"`       // alipay / stripe / fake
	Currency    string        `env:"PAYMENT_CURRENCY" envDefault:"CNY"`
	PendingTTL  time.Duration `env:"PAYMENT_PENDING_TTL" envDefault:"30m"`     // через сколько pending считается просроченным
	SweepPeriod time.Duration `env:"PAYMENT_SWEEP_PERIOD" envDefault:"1m"`     // период проверки просроченных заказов
	StatusTTL   time.Duration `env:"PAYMENT_STATUS_CACHE_TTL" envDefault:"1h"` // кэш финальных статусов в Redis
	FakeAutoPay bool          `env:"PAYMENT_FAKE_AUTO_PAY" envDefault:"true"`  // fake-провайдер сразу считает заказ оплаченным
}

// AlipayConfig — ключи и адреса Alipay (RSA2).
type AlipayConfig struct {
	AppID      string `env:"ALIPAY_APP_ID"`
	PrivateKey string `env:"ALIPAY_PRIVATE_KEY"` // PEM или base64 без заголовков
	PublicKey  string `env:"ALIPAY_PUBLIC_KEY"`  // публичный ключ Alipay для проверки уведомлений
	ReturnURL  string `env:"ALIPAY_RETURN_URL"`
	NotifyURL  string `env:"ALIPAY_NOTIFY_URL"`
	Sandbox    bool   `env:"ALIPAY_SANDBOX" envDefault:"true"`
}

// StripeConfig — Checkout Sessions.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	SuccessURL    string `env:"STRIPE_SUCCESS_URL" envDefault:"http://localhost:8081/complete"`
	CancelURL     string `env:"STRIPE_CANCEL_URL" envDefault:"http://localhost:8081/cancel"`
}

// ClientConfig — настройки клиента Payment API (payctl).
type ClientConfig struct {
	BaseURL      string        `env:"PAYMENT_API_URL" envDefault:"http://localhost:8080"`
	PollInterval time.Duration `env:"PAYMENT_POLL_INTERVAL" envDefault:"2s"`
	LogLevel     string        `env:"PAYCTL_LOG_LEVEL" envDefault:"warn"` // диагностика клиента в stderr
}

// LoadClient загружает настройки клиента; .env подхватывается, если есть.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации клиента: %w", err)
	}
	if err := positive("PAYMENT_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load загружает конфигурацию из окружения; .env подхватывается, если есть.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет интервалы: нулевой период ломает тикеры фоновых воркеров.
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"PAYMENT_PENDING_TTL":      c.Payment.PendingTTL,
		"PAYMENT_SWEEP_PERIOD":     c.Payment.SweepPeriod,
		"PAYMENT_STATUS_CACHE_TTL": c.Payment.StatusTTL,
	}
	if c.RateLimit.Enabled {
		durations["RATE_LIMIT_WINDOW"] = c.RateLimit.Window
	}

	for name, d := range durations {
		if err := positive(name, d); err != nil {
			return err
		}
	}
	return nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s должен быть больше нуля, получено %s", name, d)
	}
	return nil
}

// IsDevelopment возвращает true в режиме разработки.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true в production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
