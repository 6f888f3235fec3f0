package tracing

import "time"

// Status is the state of a span.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Span records one tool execution.
type Span struct {
	SpanID        string     `json:"span_id"`
	CorrelationID string     `json:"correlation_id"`
	ToolName      string     `json:"tool_name"`
	ParentSpanID  string     `json:"parent_span_id,omitempty"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Status        Status     `json:"status"`
	InputHash     string     `json:"input_hash"`
	OutputSummary string     `json:"output_summary,omitempty"`
	Error         string     `json:"error,omitempty"`
	Depth         int        `json:"depth"`
}

// Ended reports whether the span has been closed.
func (s Span) Ended() bool { return s.EndTime != nil }

// Duration returns the span's duration, zero while it is running.
func (s Span) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// DurationMs returns Duration in milliseconds.
func (s Span) DurationMs() int64 { return s.Duration().Milliseconds() }

// EventType classifies trace events.
type EventType string

const (
	EventChainStart EventType = "chain_start"
	EventToolStart  EventType = "tool_start"
	EventToolEnd    EventType = "tool_end"
	EventChainEnd   EventType = "chain_end"
)

// Event is an append-only trace record.
type Event struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	SpanID        string    `json:"span_id,omitempty"`
	ToolName      string    `json:"tool_name,omitempty"`
	Success       *bool     `json:"success,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Timeline is the ordered view of one chain.
type Timeline struct {
	CorrelationID string `json:"correlation_id"`
	Spans         []Span `json:"spans"`
	// TotalDurationMs spans from the earliest start to the latest end among
	// ended spans.
	TotalDurationMs int64 `json:"total_duration_ms"`
	// CriticalPath is the root-to-leaf chain with the most spans; ties go
	// to the chain that started first.
	CriticalPath []Span `json:"critical_path"`
	// CriticalPathMs is the wall time of the critical path.
	CriticalPathMs int64 `json:"critical_path_ms"`
}

// Summary aggregates the whole store.
type Summary struct {
	TotalSpans       int     `json:"total_spans"`
	TotalChains      int     `json:"total_chains"`
	AvgSpansPerChain float64 `json:"avg_spans_per_chain"`
}
