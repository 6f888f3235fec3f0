// Package orchestrator routes handoffs between agents and runs multi-step
// workflows on top of a tool executor.
//
// Agents are names in a directory that maps each agent to the tool that
// implements it. Every handoff, successful or not, is recorded in the
// execution graph so the flow of control can be rendered afterwards.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/graph"
	"github.com/hupe1980/toolmesh/logging"
)

// Executor runs a tool on behalf of an agent. *invoker.Invoker implements it.
type Executor interface {
	Invoke(ctx context.Context, name string, args map[string]any, ic *core.InvocationContext, opts ...core.CallOption) (*core.Result, error)
}

// Options configures an Orchestrator.
type Options struct {
	Logger   logging.Logger
	Executor Executor
	// Graph receives a record per handoff. A private graph is created when nil.
	Graph *graph.Graph
	// Agents seeds the directory (agent name -> tool name).
	Agents map[string]string
	// CallOptions are applied to every executor call.
	CallOptions []core.CallOption
	// ContextOptions configure the chains the orchestrator starts itself.
	ContextOptions []func(o *core.ContextOptions)
}

// Orchestrator dispatches handoffs and workflows.
type Orchestrator struct {
	mu       sync.RWMutex
	agents   map[string]string
	executor Executor
	graph    *graph.Graph
	logger   logging.Logger
	callOpts []core.CallOption
	ctxOpts  []func(o *core.ContextOptions)
}

// New creates an orchestrator.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Graph == nil {
		opts.Graph = graph.New(func(o *graph.Options) { o.Logger = opts.Logger })
	}

	agents := make(map[string]string, len(opts.Agents))
	for name, toolName := range opts.Agents {
		agents[name] = toolName
	}

	return &Orchestrator{
		agents:   agents,
		executor: opts.Executor,
		graph:    opts.Graph,
		logger:   opts.Logger,
		callOpts: opts.CallOptions,
		ctxOpts:  opts.ContextOptions,
	}
}

// RegisterAgent maps an agent name to the tool that implements it. An empty
// toolName uses the agent name.
func (o *Orchestrator) RegisterAgent(agent, toolName string) {
	if toolName == "" {
		toolName = agent
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.agents[agent] = toolName
}

// LookupAgent returns the tool registered for agent.
func (o *Orchestrator) LookupAgent(agent string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	toolName, ok := o.agents[agent]

	return toolName, ok
}

// Agents lists the registered agent names in sorted order.
func (o *Orchestrator) Agents() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]string, 0, len(o.agents))
	for name := range o.agents {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Graph returns the execution graph handoffs are recorded in.
func (o *Orchestrator) Graph() *graph.Graph { return o.graph }

// HandoffRequest transfers control to TargetAgent with Context as arguments.
type HandoffRequest struct {
	// SourceAgent is empty for calls from outside the mesh.
	SourceAgent string
	TargetAgent string
	Context     map[string]any
	// Invocation joins an existing chain. Nil starts a new chain.
	Invocation *core.InvocationContext
}

// HandoffResult is the outcome of a handoff.
type HandoffResult struct {
	Success bool
	Data    any
	Error   string
	// Result is the executor's result, nil when the executor was not reached.
	Result *core.Result
	Record graph.Record
}

// ExecuteHandoff resolves the target agent and runs its tool through the
// executor.
//
// A handoff record is written for every attempt, including lookups that fail
// and executors that panic. The returned result is never nil. The error is
// non-nil when the agent is unknown, no executor is configured, the executor
// returned an error or panicked; a failed tool result alone only sets
// Success to false.
func (o *Orchestrator) ExecuteHandoff(ctx context.Context, req HandoffRequest) (*HandoffResult, error) {
	start := time.Now()

	res, err := o.handoff(ctx, req)

	out := &HandoffResult{Result: res}

	switch {
	case err != nil:
		out.Error = handoffErrorMessage(err)
	case res == nil:
		out.Error = core.UnknownErrorMessage
	case !res.Success:
		out.Error = res.Error
	default:
		out.Success = true
		out.Data = res.Data
	}

	dur := time.Since(start)

	out.Record = o.graph.RecordHandoff(graph.Handoff{
		SourceAgent:   req.SourceAgent,
		TargetAgent:   req.TargetAgent,
		ExecutionTime: dur,
		Success:       out.Success,
		Error:         out.Error,
	})

	o.logHandoff(req, dur, out)

	return out, err
}

func (o *Orchestrator) handoff(ctx context.Context, req HandoffRequest) (res *core.Result, err error) {
	toolName, ok := o.LookupAgent(req.TargetAgent)
	if !ok {
		return nil, &AgentNotFoundError{Agent: req.TargetAgent}
	}

	if o.executor == nil {
		return nil, ErrNoExecutor
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, core.NewPanicError(r)
		}
	}()

	ic := req.Invocation
	if ic == nil {
		ic = o.newContext()
	}

	return o.executor.Invoke(ctx, toolName, req.Context, ic, o.callOpts...)
}

func (o *Orchestrator) newContext() *core.InvocationContext {
	return core.NewContext(nil, o.ctxOpts...)
}

// handoffErrorMessage keeps recorded errors short. Panics with non-error
// values carry no usable message.
func handoffErrorMessage(err error) string {
	var nf *AgentNotFoundError
	if errors.As(err, &nf) {
		return ErrAgentNotFound.Error()
	}

	var pe *core.PanicError
	if errors.As(err, &pe) {
		if perr, ok := pe.Value.(error); ok {
			return core.ErrorMessage(perr)
		}
		return core.UnknownErrorMessage
	}

	return core.ErrorMessage(err)
}

func (o *Orchestrator) logHandoff(req HandoffRequest, dur time.Duration, out *HandoffResult) {
	source := req.SourceAgent
	if source == "" {
		source = graph.ExternalCaller
	}

	var err error
	if !out.Success {
		err = errors.New(out.Error)
	}

	if hl, ok := o.logger.(logging.HandoffLogger); ok {
		hl.LogHandoff(source, req.TargetAgent, dur, out.Success, err)
		return
	}

	if out.Success {
		o.logger.Info("orchestrator.handoff.complete",
			"handoff.source", source,
			"handoff.target", req.TargetAgent,
			"handoff.duration_ms", dur.Milliseconds(),
		)
		return
	}

	o.logger.Warn("orchestrator.handoff.failed",
		"handoff.source", source,
		"handoff.target", req.TargetAgent,
		"handoff.duration_ms", dur.Milliseconds(),
		"error", out.Error,
	)
}
