package logger

import (
	"context"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

type entryKey struct{}

// entry копит атрибуты, которые нижние middleware и хендлеры добавляют к строке access-лога.
type entry struct {
	mu    sync.Mutex
	attrs []any
}

// Annotate добавляет атрибуты к access-логу текущего запроса.
// Вне логирующего middleware ничего не делает.
func Annotate(ctx context.Context, attrs ...slog.Attr) {
	e, ok := ctx.Value(entryKey{}).(*entry)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range attrs {
		e.attrs = append(e.attrs, a)
	}
}

// Logger пишет одну строку access-лога на запрос к API.
type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	return &Logger{
		log: log.With(slog.String("component", "http_logger")),
	}
}

// Middleware: 5xx пишутся с уровнем error, 4xx с уровнем warn.
func (l *Logger) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		e := &entry{}

		next(huma.WithContext(ctx, context.WithValue(ctx.Context(), entryKey{}, e)))

		status := ctx.Status()
		attrs := []any{
			slog.String("op", ctx.Operation().OperationID),
			slog.String("method", ctx.Method()),
			slog.String("path", ctx.URL().Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", ctx.RemoteAddr()),
		}
		e.mu.Lock()
		attrs = append(attrs, e.attrs...)
		e.mu.Unlock()

		switch {
		case status >= 500:
			l.log.Error("HTTP request", attrs...)
		case status >= 400:
			l.log.Warn("HTTP request", attrs...)
		default:
			l.log.Info("HTTP request", attrs...)
		}
	}
}
