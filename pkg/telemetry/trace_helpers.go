package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

const tracerName = "github.com/zeroagent/zeroagent"

// Tracer returns the tracer used across the agent
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

// WithSpan runs f inside a span named name, recording its error
func WithSpan(ctx context.Context, name string, f func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := f(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// SkillAttributes describes a registry entry on a span
func SkillAttributes(entry skilltypes.Entry) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("skill.name", entry.Name),
		attribute.String("skill.version", entry.Version),
		attribute.String("skill.mode", string(entry.ExecutionMode)),
		attribute.String("skill.tier", string(entry.Tier)),
	}
}

// AddEvent adds an event to the span in ctx
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
