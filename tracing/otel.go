package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hupe1980/toolmesh/tracing"

// WithTracer mirrors every span to tracer.
func WithTracer(tracer trace.Tracer) func(o *Options) {
	return func(o *Options) { o.Tracer = tracer }
}

// startOTelSpan mirrors span to the configured tracer. Callers hold l.mu.
func (l *Logger) startOTelSpan(span *Span) {
	if l.opts.Tracer == nil {
		return
	}

	ctx := l.otelParentContext(span.ParentSpanID)

	_, mirror := l.opts.Tracer.Start(ctx, span.ToolName,
		trace.WithTimestamp(span.StartTime),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(spanAttributes(*span)...),
	)

	l.otel[span.SpanID] = mirror
	l.otelParents[span.SpanID] = mirror.SpanContext()
}

// endOTelSpan closes the mirrored span. Callers hold l.mu.
func (l *Logger) endOTelSpan(span *Span) {
	mirror, ok := l.otel[span.SpanID]
	if !ok {
		return
	}

	delete(l.otel, span.SpanID)

	if span.OutputSummary != "" {
		mirror.SetAttributes(attribute.String("toolmesh.output_summary", span.OutputSummary))
	}

	if span.Status == StatusError {
		mirror.SetStatus(codes.Error, span.Error)
	} else {
		mirror.SetStatus(codes.Ok, "")
	}

	mirror.End(trace.WithTimestamp(*span.EndTime))
}
