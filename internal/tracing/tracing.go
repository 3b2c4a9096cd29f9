// Package tracing wraps OpenTelemetry span creation for the round loop,
// the LLM invoker, and the tool executor (§4 Domain Stack). Grounded on
// hieuntg81-alfred-ai's internal/infra/tracer/tracer.go: a package-level
// tracer name, a Setup that installs a noop provider when tracing is
// disabled, and a stdouttrace exporter otherwise (no collector dependency
// for this illustrative module), plus haasonsaas-nexus's
// internal/observability/tracing.go convention of one named Trace*
// helper per instrumented operation kind.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "orchestrion"

// Config controls whether spans are exported and how.
type Config struct {
	// Enabled turns on a real TracerProvider. When false, Setup installs a
	// noop provider and every Start call below is a zero-cost no-op.
	Enabled bool

	// Exporter selects the span exporter. Only "stdout" is supported today;
	// anything else (including empty) behaves like Enabled=false.
	Exporter string
}

// Setup installs the global TracerProvider and returns a shutdown func that
// must be called (typically via defer) before process exit.
func Setup(cfg Config) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Exporter == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout span exporter: %w", err)
		}
	default:
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Start begins a span under the package tracer.
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartRound traces one model round of the round loop (§4.7).
func StartRound(ctx context.Context, sessionID string, userRound, modelRound int64) (context.Context, trace.Span) {
	return Start(ctx, "round.run", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int64("user_round", userRound),
		attribute.Int64("model_round", modelRound),
	))
}

// StartLLMCall traces one provider invocation (§4.5).
func StartLLMCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return Start(ctx, fmt.Sprintf("llm.%s", provider), trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	))
}

// StartToolExecution traces one tool dispatch (§4.3/§4.7 step 7).
func StartToolExecution(ctx context.Context, sessionID, toolName string) (context.Context, trace.Span) {
	return Start(ctx, fmt.Sprintf("tool.%s", toolName), trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("tool.name", toolName),
	))
}

// End records err on span (if non-nil) and ends it. Call via defer right
// after a StartXxx call: `ctx, span := tracing.StartRound(...); defer tracing.End(span, &err)`.
func End(span trace.Span, err *error) {
	if err != nil && *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
