package invoker

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
)

// CallOption tunes a single invocation (dedup, timeout, recovery).
type CallOption = core.CallOption

// Re-exported call options so callers need not import core.
var (
	WithDeduplicate = core.WithDeduplicate
	WithTimeout     = core.WithTimeout
	WithOnError     = core.WithOnError
)

// Tracer receives span lifecycle notifications. *tracing.Logger implements it.
type Tracer interface {
	StartToolSpan(ic *core.InvocationContext, toolName, inputHash string) string
	EndToolSpan(spanID string, success bool, outputSummary, errMsg string)
	// RecordToolError notes a call rejected before a span was opened.
	RecordToolError(ic *core.InvocationContext, toolName, errMsg string)
	// ActiveSpan returns the innermost running span of a chain.
	ActiveSpan(corr string) (string, bool)
}

// Options configures an Invoker.
type Options struct {
	Logger logging.Logger
	Tracer Tracer
	// MeterProvider supplies the invocation counters and duration histogram.
	MeterProvider metric.MeterProvider
	// MaxBatchConcurrency caps parallel calls in InvokeBatch. Values < 1 mean
	// no cap beyond the batch size.
	MaxBatchConcurrency int
	// SummaryLength bounds output summaries in the execution log.
	SummaryLength int
}

func defaultOptions() Options {
	return Options{
		Logger:              logging.NoOpLogger{},
		Tracer:              noopTracer{},
		MeterProvider:       noop.NewMeterProvider(),
		MaxBatchConcurrency: 8,
		SummaryLength:       200,
	}
}

type noopTracer struct{}

func (noopTracer) StartToolSpan(*core.InvocationContext, string, string) string { return "" }
func (noopTracer) EndToolSpan(string, bool, string, string)                      {}
func (noopTracer) RecordToolError(*core.InvocationContext, string, string)       {}
func (noopTracer) ActiveSpan(string) (string, bool)                              { return "", false }
