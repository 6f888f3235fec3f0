package tool

import (
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
)

// FunctionToolOptions configures a FunctionTool.
type FunctionToolOptions struct {
	// CanInvoke lists the tools the function may call through its ToolContext.
	CanInvoke []string
	// MaxConcurrency bounds parallel executions in batch calls.
	MaxConcurrency int
}

// FunctionTool exposes a plain Go function as a tool.
//
// Arguments reach the function already validated against the parameter schema
// by the invoker. Errors returned by the function are passed through
// unchanged; the invoker wraps them with the tool name and an error code.
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          core.Handler
	opts        FunctionToolOptions
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Example:
//
//	double := NewFunctionTool(
//	  "double",
//	  "Double a number",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "value": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"value"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    v, _ := util.ToFloat(args["value"])
//	    return v * 2, nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn core.Handler, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, f := range optFns {
		f(&opts)
	}

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		opts:        opts,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
func NewFunctionToolFromStruct(name, description string, structType any, fn core.Handler, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// CanInvoke returns the tools this function may call.
func (t *FunctionTool) CanInvoke() []string { return t.opts.CanInvoke }

// MaxConcurrency returns the batch concurrency hint.
func (t *FunctionTool) MaxConcurrency() int { return t.opts.MaxConcurrency }

// Call executes the wrapped function.
//
// Logging Fields:
//
//	tool: tool name
//	correlation_id: chain correlation id
//	depth: nesting depth
//	duration_ms: execution time in milliseconds
func (t *FunctionTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	start := time.Now()

	tc.LogDebug("tool.call.start")

	result, err := t.fn(tc, args)
	if err != nil {
		tc.LogDebug("tool.call.error", "error", err.Error())
		return nil, err
	}

	tc.LogDebug("tool.call.success", "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
