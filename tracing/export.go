package tracing

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Format selects the export document shape.
type Format string

const (
	// FormatJSON exports {correlationId, spans}.
	FormatJSON Format = "json"
	// FormatOTLP exports an OTLP/JSON shaped {resourceSpans} document.
	FormatOTLP Format = "otlp"
)

// ErrUnknownFormat is returned by ExportTrace for unsupported formats.
var ErrUnknownFormat = errors.New("unknown trace export format")

// ParseFormat maps "json", "otlp" and "opentelemetry" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "otlp", "opentelemetry", "otel":
		return FormatOTLP, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, s)
	}
}

// JSONTrace is the plain export document.
type JSONTrace struct {
	CorrelationID string `json:"correlationId"`
	Spans         []Span `json:"spans"`
}

// OTLP status codes.
const (
	otlpStatusUnset = 0
	otlpStatusOK    = 1
	otlpStatusError = 2

	otlpSpanKindInternal = 1
)

// OTLPTrace mirrors the OTLP/JSON trace payload.
type OTLPTrace struct {
	ResourceSpans []OTLPResourceSpans `json:"resourceSpans"`
}

type OTLPResourceSpans struct {
	Resource   OTLPResource     `json:"resource"`
	ScopeSpans []OTLPScopeSpans `json:"scopeSpans"`
}

type OTLPResource struct {
	Attributes []OTLPKeyValue `json:"attributes"`
}

type OTLPScopeSpans struct {
	Scope OTLPScope  `json:"scope"`
	Spans []OTLPSpan `json:"spans"`
}

type OTLPScope struct {
	Name string `json:"name"`
}

type OTLPSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId,omitempty"`
	Name              string         `json:"name"`
	Kind              int            `json:"kind"`
	StartTimeUnixNano string         `json:"startTimeUnixNano"`
	EndTimeUnixNano   string         `json:"endTimeUnixNano,omitempty"`
	Attributes        []OTLPKeyValue `json:"attributes"`
	Status            OTLPStatus     `json:"status"`
}

type OTLPStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type OTLPKeyValue struct {
	Key   string    `json:"key"`
	Value OTLPValue `json:"value"`
}

type OTLPValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

// ExportTrace renders a chain as a JSON-serializable document. Unknown
// chains export with no spans.
func (l *Logger) ExportTrace(corr string, format Format) (any, error) {
	l.mu.Lock()
	spans := l.spansLocked(corr)
	service := l.opts.ServiceName
	l.mu.Unlock()

	switch format {
	case FormatJSON:
		return JSONTrace{CorrelationID: corr, Spans: spans}, nil
	case FormatOTLP:
		return toOTLP(corr, service, spans), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func toOTLP(corr, service string, spans []Span) OTLPTrace {
	traceID := TraceIDFor(corr).String()

	out := make([]OTLPSpan, 0, len(spans))
	for _, s := range spans {
		o := OTLPSpan{
			TraceID:           traceID,
			SpanID:            SpanIDFor(s.SpanID).String(),
			Name:              s.ToolName,
			Kind:              otlpSpanKindInternal,
			StartTimeUnixNano: strconv.FormatInt(s.StartTime.UnixNano(), 10),
			Attributes:        otlpAttributes(spanAttributes(s)),
		}

		if s.ParentSpanID != "" {
			o.ParentSpanID = SpanIDFor(s.ParentSpanID).String()
		}

		if s.EndTime != nil {
			o.EndTimeUnixNano = strconv.FormatInt(s.EndTime.UnixNano(), 10)
		}

		switch s.Status {
		case StatusSuccess:
			o.Status = OTLPStatus{Code: otlpStatusOK}
		case StatusError:
			o.Status = OTLPStatus{Code: otlpStatusError, Message: s.Error}
		default:
			o.Status = OTLPStatus{Code: otlpStatusUnset}
		}

		out = append(out, o)
	}

	return OTLPTrace{
		ResourceSpans: []OTLPResourceSpans{{
			Resource: OTLPResource{
				Attributes: otlpAttributes([]attribute.KeyValue{attribute.String("service.name", service)}),
			},
			ScopeSpans: []OTLPScopeSpans{{
				Scope: OTLPScope{Name: instrumentationName},
				Spans: out,
			}},
		}},
	}
}

// spanAttributes are shared by the OTLP export and the live OpenTelemetry bridge.
func spanAttributes(s Span) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("toolmesh.tool", s.ToolName),
		attribute.String("toolmesh.correlation_id", s.CorrelationID),
		attribute.Int("toolmesh.depth", s.Depth),
		attribute.String("toolmesh.input_hash", s.InputHash),
	}

	if s.OutputSummary != "" {
		attrs = append(attrs, attribute.String("toolmesh.output_summary", s.OutputSummary))
	}

	return attrs
}

func otlpAttributes(attrs []attribute.KeyValue) []OTLPKeyValue {
	out := make([]OTLPKeyValue, 0, len(attrs))

	for _, kv := range attrs {
		var v OTLPValue

		switch kv.Value.Type() {
		case attribute.BOOL:
			b := kv.Value.AsBool()
			v.BoolValue = &b
		case attribute.INT64:
			i := strconv.FormatInt(kv.Value.AsInt64(), 10)
			v.IntValue = &i
		case attribute.FLOAT64:
			f := kv.Value.AsFloat64()
			v.DoubleValue = &f
		default:
			s := kv.Value.Emit()
			v.StringValue = &s
		}

		out = append(out, OTLPKeyValue{Key: string(kv.Key), Value: v})
	}

	return out
}

// TraceIDFor derives a 16 byte trace id from a correlation id. UUIDs map to
// their raw bytes; other ids are hashed.
func TraceIDFor(corr string) trace.TraceID {
	var id trace.TraceID

	if u, err := uuid.Parse(corr); err == nil {
		copy(id[:], u[:])
		return id
	}

	sum := sha256.Sum256([]byte(corr))
	copy(id[:], sum[:16])

	return id
}

// SpanIDFor derives an 8 byte span id from a span id string.
func SpanIDFor(spanID string) trace.SpanID {
	var id trace.SpanID

	if u, err := uuid.Parse(spanID); err == nil {
		copy(id[:], u[:8])
		return id
	}

	sum := sha256.Sum256([]byte(spanID))
	copy(id[:], sum[:8])

	return id
}
