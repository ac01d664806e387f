package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Phase is an open span for one connection phase.
type Phase struct {
	span trace.Span
}

// StartPhase opens a client span named name on tracer. The returned context
// parents any nested phase.
func StartPhase(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, *Phase) {
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Phase{span: span}
}

// End closes the phase. A non-nil err marks the span failed and tags it with
// the error's Go type; that status is what telemetry counts as a failure.
func (p *Phase) End(err error, attrs ...attribute.KeyValue) {
	if p == nil {
		return
	}
	p.span.SetAttributes(attrs...)
	if err == nil {
		p.span.SetStatus(codes.Ok, "")
		p.span.End()
		return
	}
	p.span.SetAttributes(attribute.String("error.type", fmt.Sprintf("%T", err)))
	p.span.RecordError(err)
	p.span.SetStatus(codes.Error, err.Error())
	p.span.End()
}
