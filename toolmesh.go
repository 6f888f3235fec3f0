// Package toolmesh provides a high-level façade over the tool registry, the
// invoker, the trace store, the execution graph and the agent orchestrator.
// Most applications interact with this package by:
//  1. Creating a Mesh via New() or NewFromConfig()
//  2. Registering tools and mapping agents onto them
//  3. Invoking tools, handing off between agents or running workflows
//  4. Reading back traces, timelines and diagrams
//
// All components share one logger and observe the same trace store, so every
// call made through the Mesh shows up in its traces and handoffs show up in
// its graph.
package toolmesh

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/graph"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/hupe1980/toolmesh/tracing"
)

// Options configures a Mesh.
type Options struct {
	// Invocation defaults applied to chains started by the Mesh.
	MaxDepth     int
	Timeout      time.Duration
	ChainTimeout time.Duration

	// MaxBatchConcurrency caps parallel calls in InvokeBatch.
	MaxBatchConcurrency int

	// Trace store bounds.
	MaxSpans    int
	MaxEvents   int
	ServiceName string

	// MaxRecords bounds the handoff history.
	MaxRecords int

	// Agents seeds the agent directory (agent name -> tool name).
	Agents map[string]string

	// Tracer mirrors spans to OpenTelemetry when set.
	Tracer trace.Tracer
	// MeterProvider receives invocation metrics. Metrics are discarded when nil.
	MeterProvider metric.MeterProvider

	// Registry is used instead of a fresh one when set.
	Registry *tool.Registry

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh aggregates the runtime components.
type Mesh struct {
	opts         Options
	registry     *tool.Registry
	invoker      *invoker.Invoker
	tracer       *tracing.Logger
	graph        *graph.Graph
	orchestrator *orchestrator.Orchestrator
}

// New creates a Mesh with optional overrides. Unset bounds use the defaults of
// the respective component.
func New(optFns ...func(o *Options)) *Mesh {
	def := config.Default()

	opts := Options{
		MaxDepth:            def.Invocation.MaxDepth,
		MaxBatchConcurrency: def.Invocation.MaxBatchConcurrency,
		MaxSpans:            def.Tracing.MaxSpans,
		MaxEvents:           def.Tracing.MaxEvents,
		ServiceName:         def.Tracing.ServiceName,
		MaxRecords:          def.Graph.MaxRecords,
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	reg := opts.Registry
	if reg == nil {
		reg = tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	}

	tr := tracing.New(func(o *tracing.Options) {
		o.Logger = opts.Logger
		o.MaxSpans = opts.MaxSpans
		o.MaxEvents = opts.MaxEvents
		o.ServiceName = opts.ServiceName
		o.Tracer = opts.Tracer
	})

	inv := invoker.New(reg, func(o *invoker.Options) {
		o.Logger = opts.Logger
		o.Tracer = tr
		o.MaxBatchConcurrency = opts.MaxBatchConcurrency
		if opts.MeterProvider != nil {
			o.MeterProvider = opts.MeterProvider
		}
	})

	g := graph.New(func(o *graph.Options) {
		o.Logger = opts.Logger
		o.MaxRecords = opts.MaxRecords
	})

	m := &Mesh{
		opts:     opts,
		registry: reg,
		invoker:  inv,
		tracer:   tr,
		graph:    g,
	}

	m.orchestrator = orchestrator.New(func(o *orchestrator.Options) {
		o.Logger = opts.Logger
		o.Executor = inv
		o.Graph = g
		o.Agents = opts.Agents
		o.ContextOptions = []func(o *core.ContextOptions){m.contextDefaults}
	})

	return m
}

// NewFromConfig creates a Mesh from cfg. The logger described by cfg writes to
// stderr unless optFns replace it.
func NewFromConfig(cfg config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	fns := append([]func(o *Options){func(o *Options) {
		o.MaxDepth = cfg.Invocation.MaxDepth
		o.Timeout = cfg.Invocation.Timeout.Std()
		o.ChainTimeout = cfg.Invocation.ChainTimeout.Std()
		o.MaxBatchConcurrency = cfg.Invocation.MaxBatchConcurrency
		o.MaxSpans = cfg.Tracing.MaxSpans
		o.MaxEvents = cfg.Tracing.MaxEvents
		o.ServiceName = cfg.Tracing.ServiceName
		o.MaxRecords = cfg.Graph.MaxRecords
		o.Agents = cfg.Agents
		o.Logger = logger
	}}, optFns...)

	return New(fns...), nil
}

func (m *Mesh) contextDefaults(o *core.ContextOptions) {
	o.MaxDepth = m.opts.MaxDepth
	o.Timeout = m.opts.Timeout
	o.ChainTimeout = m.opts.ChainTimeout
}

// Register adds a tool built from a definition and a handler.
func (m *Mesh) Register(def tool.Definition, h core.Handler) error {
	return m.registry.Register(def, h)
}

// RegisterTool adds a tool implementation.
func (m *Mesh) RegisterTool(t tool.Tool) error { return m.registry.RegisterTool(t) }

// RegisterAgent maps an agent name onto a registered tool. An empty toolName
// uses the agent name.
func (m *Mesh) RegisterAgent(agent, toolName string) { m.orchestrator.RegisterAgent(agent, toolName) }

// NewContext starts a chain carrying the Mesh's invocation defaults.
func (m *Mesh) NewContext(optFns ...func(o *core.ContextOptions)) *core.InvocationContext {
	return core.NewContext(nil, append([]func(o *core.ContextOptions){m.contextDefaults}, optFns...)...)
}

// Invoke calls a tool. A nil ic starts a chain via NewContext.
func (m *Mesh) Invoke(ctx context.Context, name string, args map[string]any, ic *core.InvocationContext, opts ...invoker.CallOption) (*core.Result, error) {
	if ic == nil {
		ic = m.NewContext()
	}

	return m.invoker.Invoke(ctx, name, args, ic, opts...)
}

// InvokeBatch runs calls in parallel within one chain. A nil ic starts a chain
// via NewContext.
func (m *Mesh) InvokeBatch(ctx context.Context, calls []invoker.Call, ic *core.InvocationContext, opts ...invoker.CallOption) []invoker.CallResult {
	if ic == nil {
		ic = m.NewContext()
	}

	return m.invoker.InvokeBatch(ctx, calls, ic, opts...)
}

// Handoff transfers control to an agent and records the handoff.
func (m *Mesh) Handoff(ctx context.Context, req orchestrator.HandoffRequest) (*orchestrator.HandoffResult, error) {
	return m.orchestrator.ExecuteHandoff(ctx, req)
}

// RunWorkflow executes wf step by step.
func (m *Mesh) RunWorkflow(ctx context.Context, wf orchestrator.Workflow, initial map[string]any) (*orchestrator.WorkflowResult, error) {
	return m.orchestrator.ExecuteWorkflow(ctx, wf, initial)
}

// Trace returns the spans recorded for a correlation id.
func (m *Mesh) Trace(corr string) []tracing.Span { return m.tracer.Spans(corr) }

// Timeline returns the timeline of a correlation id.
func (m *Mesh) Timeline(corr string) tracing.Timeline { return m.tracer.Timeline(corr) }

// ExportTrace renders the trace of a correlation id in the given format.
func (m *Mesh) ExportTrace(corr string, format tracing.Format) (any, error) {
	return m.tracer.ExportTrace(corr, format)
}

// Mermaid renders the handoff graph as a Mermaid flowchart.
func (m *Mesh) Mermaid() string { return m.graph.ToMermaid() }

// SequenceDiagram renders the handoff history as a Mermaid sequence diagram.
func (m *Mesh) SequenceDiagram() string { return m.graph.ToSequenceDiagram() }

// Reset clears traces and handoff records. Registered tools and agents stay.
func (m *Mesh) Reset() {
	m.tracer.Clear()
	m.graph.Clear()
}

// Registry returns the tool registry.
func (m *Mesh) Registry() *tool.Registry { return m.registry }

// Invoker returns the invoker.
func (m *Mesh) Invoker() *invoker.Invoker { return m.invoker }

// Tracer returns the trace store.
func (m *Mesh) Tracer() *tracing.Logger { return m.tracer }

// Graph returns the execution graph.
func (m *Mesh) Graph() *graph.Graph { return m.graph }

// Orchestrator returns the agent orchestrator.
func (m *Mesh) Orchestrator() *orchestrator.Orchestrator { return m.orchestrator }
