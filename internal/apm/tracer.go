package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans against the installed global provider.
type Tracer interface {
	StartSpanFromContext(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
	GetTracer() trace.Tracer
}

// Span narrows trace.Span to what the application uses and adds NoticeError.
type Span interface {
	SetAttributes(values ...attribute.KeyValue)
	AddEvent(name string, options ...trace.EventOption)
	RecordError(err error, options ...trace.EventOption)
	NoticeError(err error)
	SetStatus(code codes.Code, description string)
	IsRecording() bool
	SpanContext() trace.SpanContext
	End(options ...trace.SpanEndOption)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer scoped to the given instrumentation name.
func NewTracer(name string) Tracer {
	return &otelTracer{otel.Tracer(name)}
}

func (t *otelTracer) StartSpanFromContext(
	ctx context.Context, name string, opts ...trace.SpanStartOption,
) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, wrapSpan{span}
}

func (t *otelTracer) SpanFromContext(ctx context.Context) Span {
	return wrapSpan{trace.SpanFromContext(ctx)}
}

func (t *otelTracer) GetTracer() trace.Tracer {
	return t.tracer
}

type wrapSpan struct {
	span trace.Span
}

func (s wrapSpan) SetAttributes(values ...attribute.KeyValue) {
	s.span.SetAttributes(values...)
}

func (s wrapSpan) AddEvent(name string, options ...trace.EventOption) {
	s.span.AddEvent(name, options...)
}

func (s wrapSpan) RecordError(err error, options ...trace.EventOption) {
	s.span.RecordError(err, options...)
}

// NoticeError records err and marks the span as failed.
func (s wrapSpan) NoticeError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s wrapSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s wrapSpan) IsRecording() bool {
	return s.span.IsRecording()
}

func (s wrapSpan) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

func (s wrapSpan) End(options ...trace.SpanEndOption) {
	s.span.End(options...)
}
