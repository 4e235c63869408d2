package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel парсит уровень логирования без учёта регистра.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger создаёт логгер и делает его глобальным.
//
// Формат вывода:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func NewLogger(level, format string) *slog.Logger {
	var handler slog.Handler

	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithSessionID возвращает логгер с добавленным session_id.
func WithSessionID(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With("session_id", sessionID)
}

// WithPCBID возвращает логгер с добавленным pcb_id.
func WithPCBID(logger *slog.Logger, pcbID string) *slog.Logger {
	return logger.With("pcb_id", pcbID)
}

// WithOperator возвращает логгер с добавленным operator_id.
func WithOperator(logger *slog.Logger, operatorID string) *slog.Logger {
	return logger.With("operator_id", operatorID)
}
