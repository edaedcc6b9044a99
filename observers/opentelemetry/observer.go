package opentelemetry

import (
	"context"
	"net/http"

	"github.com/dormoron/deskweb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dormoron/deskweb/observers/opentelemetry"

var _ deskweb.Observer = &ObserverBuilder{}

// ObserverBuilder 为每个请求创建一个 span，请求结束时以匹配到的路由命名
type ObserverBuilder struct {
	Tracer trace.Tracer // Tracer is an interface that abstracts the tracing functionality.
}

func (m *ObserverBuilder) tracer() trace.Tracer {
	if m.Tracer == nil {
		return otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return m.Tracer
}

func (m *ObserverBuilder) Begin(ctx context.Context, r *http.Request) context.Context {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
	ctx, span := m.tracer().Start(ctx, "unknown", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.url", r.URL.String()),
		attribute.String("http.scheme", r.URL.Scheme),
		attribute.String("http.host", r.Host),
	)
	return ctx
}

func (m *ObserverBuilder) Observe(ctx context.Context, ex *deskweb.Exchange) {
	span := trace.SpanFromContext(ctx)
	if ex.Route != "" {
		span.SetName(ex.Route)
	}
	span.SetAttributes(
		attribute.Int("http.status", ex.Status),
		attribute.String("http.request_id", ex.RequestID),
	)
	if ex.Err != nil {
		span.RecordError(ex.Err)
		span.SetStatus(codes.Error, ex.Err.Error())
	}
	span.End()
}
