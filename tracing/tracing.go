// Package tracing records tool executions as spans grouped by correlation id.
// It keeps a bounded, in-memory span store and event stream, derives
// timelines and critical paths, exports traces as plain JSON or as an
// OpenTelemetry-shaped document and can mirror every span to a real
// OpenTelemetry tracer.
package tracing

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
)

// Options configures a Logger.
type Options struct {
	Logger logging.Logger
	// MaxSpans bounds the span store. Only ended spans are evicted.
	MaxSpans int
	// MaxEvents bounds the event stream; the oldest events are dropped first.
	MaxEvents int
	// ServiceName is reported in OTLP exports.
	ServiceName string
	// Tracer, when set, receives a mirror of every span.
	Tracer trace.Tracer
}

// Logger is the trace store. It is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	spans  map[string]*Span
	order  []string
	events *util.Ring[Event]
	// active is the innermost running span per correlation id.
	active map[string]string
	otel   map[string]trace.Span
	// otelParents keeps mirrored span contexts so late children still link
	// to an already ended parent.
	otelParents map[string]trace.SpanContext
	opts        Options
	logger      logging.Logger
}

// New creates an empty trace store.
func New(optFns ...func(o *Options)) *Logger {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		MaxSpans:    5000,
		MaxEvents:   10000,
		ServiceName: "toolmesh",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Logger{
		spans:       map[string]*Span{},
		events:      util.NewRing[Event](opts.MaxEvents),
		active:      map[string]string{},
		otel:        map[string]trace.Span{},
		otelParents: map[string]trace.SpanContext{},
		opts:        opts,
		logger:      opts.Logger,
	}
}

// StartToolSpan opens a span for toolName and makes it the chain's active span.
// The parent is ic.ParentSpanID when set, otherwise the chain's active span.
// Detached contexts never become active and start a root span when they
// carry no parent.
func (l *Logger) StartToolSpan(ic *core.InvocationContext, toolName, inputHash string) string {
	now := time.Now()
	id := core.NewID()

	l.mu.Lock()
	defer l.mu.Unlock()

	parent := l.resolveParent(ic)

	span := &Span{
		SpanID:        id,
		CorrelationID: ic.CorrelationID,
		ToolName:      toolName,
		ParentSpanID:  parent,
		StartTime:     now,
		Status:        StatusPending,
		InputHash:     inputHash,
		Depth:         ic.Depth,
	}

	l.spans[id] = span
	l.order = append(l.order, id)
	if !ic.DetachedSpan {
		l.active[ic.CorrelationID] = id
	}

	if parent == "" {
		l.appendEvent(Event{Type: EventChainStart, Timestamp: now, CorrelationID: ic.CorrelationID, SpanID: id, ToolName: toolName})
	}
	l.appendEvent(Event{Type: EventToolStart, Timestamp: now, CorrelationID: ic.CorrelationID, SpanID: id, ToolName: toolName})

	l.startOTelSpan(span)
	l.trimSpans()

	return id
}

// resolveParent picks the parent span: the caller's span when known,
// otherwise the chain's active span.
func (l *Logger) resolveParent(ic *core.InvocationContext) string {
	if ic.ParentSpanID != "" {
		return ic.ParentSpanID
	}

	if ic.DetachedSpan {
		return ""
	}

	return l.active[ic.CorrelationID]
}

// popActive restores the parent of span as the chain's active span.
func (l *Logger) popActive(span *Span) {
	if _, ok := l.spans[span.ParentSpanID]; ok {
		l.active[span.CorrelationID] = span.ParentSpanID
		return
	}

	delete(l.active, span.CorrelationID)
}

// EndToolSpan closes a span. Unknown or already ended spans are ignored.
func (l *Logger) EndToolSpan(spanID string, success bool, outputSummary, errMsg string) {
	if spanID == "" {
		return
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	span, ok := l.spans[spanID]
	if !ok {
		l.logger.Warn("trace.span.unknown", "span_id", spanID)
		return
	}

	if span.Ended() {
		l.logger.Warn("trace.span.already_ended", "span_id", spanID, "tool", span.ToolName)
		return
	}

	span.EndTime = &now
	span.OutputSummary = outputSummary
	span.Error = errMsg

	if success {
		span.Status = StatusSuccess
	} else {
		span.Status = StatusError
	}

	if l.active[span.CorrelationID] == spanID {
		l.popActive(span)
	}

	succeeded := success
	l.appendEvent(Event{
		Type:          EventToolEnd,
		Timestamp:     now,
		CorrelationID: span.CorrelationID,
		SpanID:        spanID,
		ToolName:      span.ToolName,
		Success:       &succeeded,
		Error:         errMsg,
	})

	if span.ParentSpanID == "" {
		l.appendEvent(Event{Type: EventChainEnd, Timestamp: now, CorrelationID: span.CorrelationID, SpanID: spanID, ToolName: span.ToolName})
	}

	l.endOTelSpan(span)
	l.trimSpans()
}

// RecordToolError records a tool_end event for a call rejected before a
// span was opened.
func (l *Logger) RecordToolError(ic *core.InvocationContext, toolName, errMsg string) {
	failed := false

	l.mu.Lock()
	defer l.mu.Unlock()

	l.appendEvent(Event{
		Type:          EventToolEnd,
		Timestamp:     time.Now(),
		CorrelationID: ic.CorrelationID,
		ToolName:      toolName,
		Success:       &failed,
		Error:         errMsg,
	})
}

// ActiveSpan returns the innermost running span of a chain.
func (l *Logger) ActiveSpan(corr string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.active[corr]

	return id, ok
}

// Spans returns copies of the chain's spans ordered by start time.
func (l *Logger) Spans(corr string) []Span {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.spansLocked(corr)
}

func (l *Logger) spansLocked(corr string) []Span {
	out := []Span{}

	for _, id := range l.order {
		s := l.spans[id]
		if s.CorrelationID == corr {
			out = append(out, copySpan(s))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })

	return out
}

// Events returns the chain's events in append order.
func (l *Logger) Events(corr string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []Event{}

	l.events.Each(func(e Event) {
		if e.CorrelationID == corr {
			out = append(out, e)
		}
	})

	return out
}

// CorrelationIDs lists the chains with stored spans in first-seen order.
func (l *Logger) CorrelationIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := map[string]bool{}
	out := []string{}

	for _, id := range l.order {
		corr := l.spans[id].CorrelationID
		if !seen[corr] {
			seen[corr] = true
			out = append(out, corr)
		}
	}

	return out
}

// Summary aggregates span and chain counts across the store.
func (l *Logger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	chains := map[string]struct{}{}
	for _, s := range l.spans {
		chains[s.CorrelationID] = struct{}{}
	}

	sum := Summary{
		TotalSpans:  len(l.spans),
		TotalChains: len(chains),
	}

	if sum.TotalChains > 0 {
		sum.AvgSpansPerChain = float64(sum.TotalSpans) / float64(sum.TotalChains)
	}

	return sum
}

// Clear drops all spans, events and active pointers. Mirrored OpenTelemetry
// spans still open are ended.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.otel {
		s.End()
	}

	l.spans = map[string]*Span{}
	l.order = nil
	l.events.Reset()
	l.active = map[string]string{}
	l.otel = map[string]trace.Span{}
	l.otelParents = map[string]trace.SpanContext{}
}

func (l *Logger) appendEvent(e Event) {
	l.events.Push(e)
}

// trimSpans evicts the oldest ended spans until the store fits MaxSpans.
// Running spans are never evicted, so the store may exceed the bound while
// many calls are in flight.
func (l *Logger) trimSpans() {
	limit := l.opts.MaxSpans
	if limit <= 0 || len(l.order) <= limit {
		return
	}

	excess := len(l.order) - limit
	kept := l.order[:0:0]

	for _, id := range l.order {
		s := l.spans[id]
		if excess > 0 && s.Ended() {
			delete(l.spans, id)
			delete(l.otelParents, id)
			if l.active[s.CorrelationID] == id {
				delete(l.active, s.CorrelationID)
			}
			excess--
			continue
		}
		kept = append(kept, id)
	}

	l.order = kept
}

func copySpan(s *Span) Span {
	cp := *s
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	return cp
}

// otelParentContext returns the context carrying the mirrored parent span.
func (l *Logger) otelParentContext(parentID string) context.Context {
	ctx := context.Background()
	if sc, ok := l.otelParents[parentID]; ok {
		ctx = trace.ContextWithSpanContext(ctx, sc)
	}
	return ctx
}
