// Package tracing wires Process ticks into OpenTelemetry spans, grounded
// on the teacher's engine/monitoring.go OpenTelemetryTracer setup (a
// bare in-process TracerProvider, no external exporter).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for Process ticks.
type Tracer interface {
	StartTick(ctx context.Context, processName string) (context.Context, trace.Span)
}

type tracer struct {
	t trace.Tracer
}

// New returns a Tracer backed by a local, exporter-less TracerProvider
// tagged with serviceName — enough to thread trace/span IDs through
// logging (telemetry/logging) without requiring an OTLP collector.
func New(serviceName string) Tracer {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return &tracer{t: otel.Tracer(serviceName)}
}

// StartTick starts a span named after the ticking process.
func (tr *tracer) StartTick(ctx context.Context, processName string) (context.Context, trace.Span) {
	return tr.t.Start(ctx, "process.tick", trace.WithAttributes(
		attribute.String("aifand.process.name", processName),
	))
}

// ExtractIDs returns the hex trace/span IDs recorded on ctx's current
// span, or empty strings if ctx carries none — used by telemetry/logging
// to correlate log records with traces.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
