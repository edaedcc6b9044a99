package accesslog

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dormoron/deskweb"
)

var _ deskweb.Observer = &ObserverBuilder{}

// ObserverBuilder 为每个请求写一条访问日志
type ObserverBuilder struct {
	logger *slog.Logger
	level  slog.Level
}

// InitObserverBuilder 使用 logger 写访问日志，nil 时使用 slog.Default
func InitObserverBuilder(logger *slog.Logger) *ObserverBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObserverBuilder{logger: logger, level: slog.LevelInfo}
}

// Level 设置访问日志的级别，默认 Info
func (b *ObserverBuilder) Level(level slog.Level) *ObserverBuilder {
	b.level = level
	return b
}

func (b *ObserverBuilder) Begin(ctx context.Context, _ *http.Request) context.Context {
	return ctx
}

func (b *ObserverBuilder) Observe(ctx context.Context, ex *deskweb.Exchange) {
	attrs := []slog.Attr{
		slog.String("host", ex.Host),
		slog.String("route", ex.Route),
		slog.String("http_method", ex.Method),
		slog.String("path", ex.Path),
		slog.Int("status", ex.Status),
		slog.Duration("duration", ex.Duration),
		slog.String("request_id", ex.RequestID),
	}
	level := b.level
	if ex.Err != nil {
		attrs = append(attrs, slog.String("error", ex.Err.Error()))
	}
	if ex.Status >= http.StatusInternalServerError && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	b.logger.LogAttrs(ctx, level, "access", attrs...)
}
