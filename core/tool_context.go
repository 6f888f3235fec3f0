package core

import (
	"context"
	"errors"

	"github.com/hupe1980/toolmesh/logging"
)

// ErrNoInvoker is returned by ToolContext.Invoke when the context was built
// without an invoke function.
var ErrNoInvoker = errors.New("tool context has no invoker")

// Handler implements a tool. Errors and panics are normalized by the invoker.
type Handler func(tc *ToolContext, args map[string]any) (any, error)

// InvokeFunc performs a tool call. It is satisfied by the invoker and lets
// handlers call other tools without importing it.
type InvokeFunc func(ctx context.Context, toolName string, args map[string]any, ic *InvocationContext, opts ...CallOption) (*Result, error)

// ToolContext is handed to a Handler. It exposes the invocation context, the
// chain's shared state, a logger and nested invocation that keeps the chain's
// depth and permission bookkeeping intact.
type ToolContext struct {
	ctx      context.Context
	ic       *InvocationContext
	toolName string
	spanID   string
	invoke   InvokeFunc

	*toolLogger
}

// NewToolContext constructs a tool context for one execution of toolName.
func NewToolContext(ctx context.Context, ic *InvocationContext, toolName, spanID string, invoke InvokeFunc, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if ic == nil {
		ic = NewContext(nil)
	}

	return &ToolContext{
		ctx:           ctx,
		ic:            ic,
		toolName:      toolName,
		spanID:        spanID,
		invoke:        invoke,
		toolLogger:    newToolLogger(logger, ic, toolName),
	}
}

// Context returns the context of the execution. It is cancelled when the
// caller stops waiting.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// InvocationContext returns the context the tool was invoked with.
func (tc *ToolContext) InvocationContext() *InvocationContext { return tc.ic }

// ToolName returns the name of the executing tool.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// SpanID returns the trace span of the execution, if tracing is enabled.
func (tc *ToolContext) SpanID() string { return tc.spanID }

// CorrelationID returns the chain's correlation id.
func (tc *ToolContext) CorrelationID() string { return tc.ic.CorrelationID }

// Depth returns the nesting depth of the execution.
func (tc *ToolContext) Depth() int { return tc.ic.Depth }

// Logger returns the logger associated with the execution.
func (tc *ToolContext) Logger() logging.Logger { return tc.toolLogger.Logger() }

// GetState retrieves a value from the chain's shared state.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.ic.State().Get(k) }

// SetState stores a value in the chain's shared state.
func (tc *ToolContext) SetState(k string, v any) { tc.ic.State().Set(k, v) }

// Invoke calls another tool as a nested call of this one.
func (tc *ToolContext) Invoke(toolName string, args map[string]any, opts ...CallOption) (*Result, error) {
	return tc.InvokeWithContext(tc.ctx, toolName, args, opts...)
}

// InvokeWithContext is Invoke with an explicit context.Context.
func (tc *ToolContext) InvokeWithContext(ctx context.Context, toolName string, args map[string]any, opts ...CallOption) (*Result, error) {
	if tc.invoke == nil {
		return nil, ErrNoInvoker
	}

	child := tc.ic.Child(tc.toolName)
	child.ParentSpanID = tc.spanID

	return tc.invoke(ctx, toolName, args, child, opts...)
}

// InvokeRoot starts an unrelated chain. The callee sees no parent tool, so
// permission and depth accounting restart.
func (tc *ToolContext) InvokeRoot(toolName string, args map[string]any, opts ...CallOption) (*Result, error) {
	if tc.invoke == nil {
		return nil, ErrNoInvoker
	}

	return tc.invoke(tc.ctx, toolName, args, nil, opts...)
}
