package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan starts the root span of a CLI command.
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	ctx, span := TracerProvider().Tracer("blitz/cmd").Start(ctx, "command."+cmdName)
	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)
	return ctx, span
}

// StartPassSpan starts the span of one build pass over a session's steps.
func StartPassSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	ctx, span := TracerProvider().Tracer("blitz/session").Start(ctx, "session.pass")
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("component", "session"),
	)
	return ctx, span
}

// StartProviderSpan starts the span of one generation call.
//
//	ctx, span := telemetry.StartProviderSpan(ctx, "gemini", "generate")
//	defer span.End()
func StartProviderSpan(ctx context.Context, providerName, operation string) (context.Context, trace.Span) {
	ctx, span := TracerProvider().Tracer("blitz/provider").Start(ctx, "provider."+operation,
		trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("provider", providerName),
		attribute.String("operation", operation),
		attribute.String("component", "provider"),
	)
	return ctx, span
}

// StartRequestSpan starts the server span of an HTTP request. The route is
// usually unknown until routing has run; set it with SetRoute.
func StartRequestSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	ctx, span := TracerProvider().Tracer("blitz/server").Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.target", path),
		attribute.String("component", "server"),
	)
	return ctx, span
}

// SetRoute names a request span after its route pattern and records the status.
func SetRoute(span trace.Span, method, route string, status int) {
	span.SetName("HTTP " + method + " " + route)
	span.SetAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	if status >= 500 {
		span.SetStatus(codes.Error, "server error")
	}
}

// RecordSuccess marks span successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records err on span. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End records err, or success when err is nil, and ends span.
func End(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		span.SetAttributes(attrs...)
		RecordError(span, err)
	} else {
		RecordSuccess(span, attrs...)
	}
	span.End()
}
