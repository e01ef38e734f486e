// Package otel hands out the tracer used around refreshes and resolution
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const InstrumentationName = "github.com/GlintPay/gkcs"

// GetTracer prefers the provider of the span already in ctx, then the global one
func GetTracer(ctx context.Context) trace.Tracer {
	provider := otel.GetTracerProvider()
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		provider = span.TracerProvider()
	}
	return provider.Tracer(InstrumentationName, trace.WithInstrumentationVersion("semver:1.0"))
}

// Start opens an internal span when enabled. The returned func ends it and is safe to defer
// either way.
func Start(ctx context.Context, enabled bool, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	if !enabled {
		return ctx, func() {}
	}
	ctx, span := GetTracer(ctx).Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}
