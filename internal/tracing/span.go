package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrIdempotencyKey = attribute.Key("orderload.idempotency_key")
	AttrOrderSide      = attribute.Key("orderload.order.side")
	AttrOrderType      = attribute.Key("orderload.order.type")
	AttrOrderStatus    = attribute.Key("orderload.order.status")
	AttrStatusCode     = attribute.Key("http.response.status_code")
)

// StartSubmitSpan starts a client span for one order submission.
func StartSubmitSpan(ctx context.Context, tracer trace.Tracer, target, idempotencyKey string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "POST orders",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("url.full", target),
		AttrIdempotencyKey.String(idempotencyKey),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
