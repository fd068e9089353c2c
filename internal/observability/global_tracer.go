package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "osscprep"

var globalTracer trace.Tracer

// InitGlobalTracer binds the package tracer to the current global provider.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(instrumentationName)
}

// GetGlobalTracer returns the package tracer, initialising it on first use.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(instrumentationName)
	}
	return globalTracer
}

// TraceFunction starts a span named "<area>.<function>".
func TraceFunction(ctx context.Context, area, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return GetGlobalTracer().Start(ctx, fmt.Sprintf("%s.%s", area, functionName), trace.WithAttributes(attributes...))
}

// TraceSourcingFunction starts a span for the tiered sourcing service.
func TraceSourcingFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "sourcing", functionName, attributes...)
}

// TraceAIFunction starts a span for model calls, racing and parsing.
func TraceAIFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "ai", functionName, attributes...)
}

// TraceBankFunction starts a span for question bank lookups.
func TraceBankFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "bank", functionName, attributes...)
}

// TraceExamFunction starts a span for mock and daily test assembly.
func TraceExamFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "exam", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeExam returns a tracing attribute for the exam code.
func AttributeExam(exam string) attribute.KeyValue {
	return attribute.String("exam", exam)
}

// AttributeSubject returns a tracing attribute for a subject hint.
func AttributeSubject(subject string) attribute.KeyValue {
	return attribute.String("subject", subject)
}

// AttributeTopic returns a tracing attribute for a syllabus or bank topic.
func AttributeTopic(topic string) attribute.KeyValue {
	return attribute.String("topic", topic)
}

// AttributeDifficulty returns a tracing attribute for a difficulty.
func AttributeDifficulty(difficulty string) attribute.KeyValue {
	return attribute.String("difficulty", difficulty)
}

// AttributeLanguage returns a tracing attribute for a language.
func AttributeLanguage(lang string) attribute.KeyValue {
	return attribute.String("language", lang)
}

// AttributeCount returns a tracing attribute for a requested count.
func AttributeCount(count int) attribute.KeyValue {
	return attribute.Int("count", count)
}

// AttributeModel returns a tracing attribute for a model identifier.
func AttributeModel(model string) attribute.KeyValue {
	return attribute.String("ai.model", model)
}

// AttributeLearnerID returns a tracing attribute for a learner.
func AttributeLearnerID(id string) attribute.KeyValue {
	return attribute.String("learner.id", id)
}

// TraceWorkerFunction starts a span for background corpus growth runs.
func TraceWorkerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "worker", functionName, attributes...)
}
