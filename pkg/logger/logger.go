// Package logger — структурированное логирование на базе zerolog.
// JSON по умолчанию, pretty-print для локальной разработки.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log — глобальный логгер процесса.
var log zerolog.Logger

// Config — настройки логгера.
type Config struct {
	Level  string    // debug / info / warn / error, по умолчанию info
	Pretty bool      // ConsoleWriter вместо JSON
	Output io.Writer // по умолчанию os.Stdout
}

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	Init(Config{
		Level:  level,
		Pretty: strings.EqualFold(os.Getenv("LOG_PRETTY"), "true"),
	})
}

// Init пересоздаёт глобальный логгер. Вызывается в main сразу после загрузки конфигурации.
func Init(cfg Config) {
	log = New(cfg)
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
}

// New собирает независимый логгер с теми же настройками, что и глобальный.
// CLI использует его, чтобы писать диагностику в stderr, не трогая stdout.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// ParseLevel преобразует строку в zerolog.Level. Неизвестное значение — InfoLevel.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug — событие уровня debug.
func Debug() *zerolog.Event { return log.Debug() }

// Info — событие уровня info.
func Info() *zerolog.Event { return log.Info() }

// Warn — событие уровня warn.
func Warn() *zerolog.Event { return log.Warn() }

// Error — событие уровня error.
func Error() *zerolog.Event { return log.Error() }

// Fatal — событие уровня fatal. После Msg() процесс завершится с кодом 1.
func Fatal() *zerolog.Event { return log.Fatal() }

// With возвращает контекст для построения дочернего логгера:
//
//	svcLog := logger.With().Str("service", "payment").Logger()
func With() zerolog.Context { return log.With() }

// Logger возвращает глобальный логгер.
func Logger() zerolog.Logger { return log }

// SetGlobalLogger подменяет глобальный логгер (тесты).
func SetGlobalLogger(l zerolog.Logger) { log = l }
