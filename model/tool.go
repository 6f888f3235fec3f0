package model

import (
	"errors"
	"fmt"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/tool"
)

// ErrMaxIterations is returned when a model keeps requesting tool calls.
var ErrMaxIterations = errors.New("model exceeded max tool iterations")

// DefaultPrompt renders the whole argument map as JSON.
const DefaultPrompt = "{{ json . }}"

// ToolOptions configures a model-backed tool.
type ToolOptions struct {
	// Prompt is a text/template rendered with the call arguments.
	Prompt string
	// System is sent as the system instruction.
	System string
	// Tools are exposed to the model. The model may call them through the
	// invoker, so they are also the tool's allow-list.
	Tools []tool.Definition
	// Parameters is the input schema of the tool. Nil accepts any object.
	Parameters map[string]any
	// MaxIterations bounds model round trips per call.
	MaxIterations int
}

// NewTool turns a Model into a tool. Each call renders the prompt from the
// arguments, lets the model call the allowed tools through the caller's
// ToolContext, and returns {"text": ..., "model": ...}.
func NewTool(name, description string, m Model, optFns ...func(o *ToolOptions)) *tool.FunctionTool {
	opts := ToolOptions{
		Prompt:        DefaultPrompt,
		MaxIterations: 5,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	defs := make([]ToolDefinition, 0, len(opts.Tools))
	allowed := make([]string, 0, len(opts.Tools))

	for _, d := range opts.Tools {
		params := d.InputSchema
		if params == nil {
			params = map[string]any{"type": "object"}
		}

		defs = append(defs, ToolDefinition{Name: d.Name, Description: d.Description, Parameters: params})
		allowed = append(allowed, d.Name)
	}

	run := &modelRun{model: m, opts: opts, defs: defs}

	return tool.NewFunctionTool(name, description, opts.Parameters, run.call, func(o *tool.FunctionToolOptions) {
		o.CanInvoke = allowed
	})
}

type modelRun struct {
	model Model
	opts  ToolOptions
	defs  []ToolDefinition
}

func (r *modelRun) call(tc *core.ToolContext, args map[string]any) (any, error) {
	prompt, err := util.RenderTemplate(r.opts.Prompt, args)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	req := Request{
		System:   r.opts.System,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
		Tools:    r.defs,
	}

	for i := 0; i < r.opts.MaxIterations; i++ {
		resp, err := r.model.Generate(tc.Context(), req)
		if err != nil {
			return nil, err
		}

		tc.LogDebug("model.generate.complete",
			"model", r.model.Info().Name,
			"iteration", i,
			"finish_reason", resp.FinishReason,
			"tool_calls", len(resp.Message.ToolCalls),
		)

		if len(resp.Message.ToolCalls) == 0 {
			out := map[string]any{
				"text":  resp.Message.Content,
				"model": r.model.Info().Name,
			}
			if resp.Usage != nil {
				out["total_tokens"] = resp.Usage.TotalTokens
			}
			return out, nil
		}

		msg := resp.Message
		msg.Role = RoleAssistant
		req.Messages = append(req.Messages, msg)

		for _, call := range resp.Message.ToolCalls {
			req.Messages = append(req.Messages, Message{
				Role:       RoleTool,
				ToolCallID: call.ID,
				Content:    runToolCall(tc, call),
			})
		}
	}

	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, r.opts.MaxIterations)
}

// runToolCall executes one requested call. Failures are reported back to the
// model as text so it can recover.
func runToolCall(tc *core.ToolContext, call ToolCall) string {
	args, err := call.DecodeArguments()
	if err != nil {
		return "error: " + err.Error()
	}

	res, err := tc.Invoke(call.Name, args)
	if err != nil {
		return "error: " + err.Error()
	}

	if !res.Success {
		return "error: " + res.Error
	}

	return util.Summarize(res.Data, 0)
}
