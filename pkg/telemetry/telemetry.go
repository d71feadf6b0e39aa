// Package telemetry configures OpenTelemetry tracing for the BDI agent
// process. Spans follow the OTel GenAI semantic conventions for the LLM
// path (gen_ai.system, gen_ai.request.model); custom span
// attributes use a bdi_agent. prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "kubernaut-bdi/agent"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider installs an OTLP gRPC trace exporter. If endpoint is
// empty, tracing is disabled and a no-op shutdown is returned — this
// process runs fine with no collector configured. Returns a shutdown
// function the caller must invoke on exit.
func InitTraceProvider(ctx context.Context, endpoint, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("bdi-agent"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartIncidentSpan creates the parent span for one BDI-loop pass over an
// incident (spec §4.9).
func StartIncidentSpan(ctx context.Context, incidentID, runbook string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "bdi.incident",
		trace.WithAttributes(
			attribute.String("bdi_agent.incident_id", incidentID),
			attribute.String("bdi_agent.runbook", runbook),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartPlanSpan creates a child span for the planner's search (spec §4.4).
func StartPlanSpan(ctx context.Context, goal string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "bdi.plan", trace.WithAttributes(
		attribute.String("bdi_agent.goal", goal),
	))
}

// EndPlanSpan enriches the plan span with the search outcome.
func EndPlanSpan(span trace.Span, found bool, stepCount int, totalCost float64) {
	span.SetAttributes(
		attribute.Bool("bdi_agent.plan_found", found),
		attribute.Int("bdi_agent.step_count", stepCount),
		attribute.Float64("bdi_agent.total_cost", totalCost),
	)
	span.End()
}

// StartToolCallSpan creates a child span for one executor tool invocation.
func StartToolCallSpan(ctx context.Context, action, target, effect string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "bdi.tool_call",
		trace.WithAttributes(
			attribute.String("bdi_agent.action", action),
			attribute.String("bdi_agent.target", target),
			attribute.String("bdi_agent.effect", effect),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndToolCallSpan enriches the tool-call span with its result.
func EndToolCallSpan(span trace.Span, success bool, errMsg string) {
	span.SetAttributes(attribute.Bool("bdi_agent.success", success))
	if errMsg != "" {
		span.SetAttributes(attribute.String("bdi_agent.error", errMsg))
	}
	span.End()
}

// StartLLMCallSpan creates a child span for an LLM call, following the
// OTel GenAI semantic conventions.
func StartLLMCallSpan(ctx context.Context, role, provider, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "gen_ai.chat",
		trace.WithAttributes(
			attribute.String("gen_ai.system", provider),
			attribute.String("gen_ai.request.model", model),
			attribute.String("bdi_agent.llm_role", role),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndLLMCallSpan closes an LLM call span.
func EndLLMCallSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("bdi_agent.error", err.Error()))
	}
	span.End()
}

// StartEscalationSpan creates a span covering an escalation round-trip.
func StartEscalationSpan(ctx context.Context, incidentID, reason string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "bdi.escalation", trace.WithAttributes(
		attribute.String("bdi_agent.incident_id", incidentID),
		attribute.String("bdi_agent.reason", reason),
	))
}
