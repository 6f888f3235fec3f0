package tool

import (
	"fmt"

	"github.com/hupe1980/toolmesh/core"
)

// callToolTool forwards a request to another registered tool as a nested call.
type callToolTool struct {
	allowed []string
}

// NewCallTool constructs the "call_tool" delegation tool. allowed becomes its
// CanInvoke list; pass Wildcard to permit any target.
func NewCallTool(allowed ...string) Tool { return &callToolTool{allowed: allowed} }

func (t *callToolTool) Name() string { return "call_tool" }

func (t *callToolTool) Description() string {
	return "Invoke another tool by name with the given arguments and return its result."
}

func (t *callToolTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool":      map[string]any{"type": "string", "minLength": 1, "description": "Target tool name"},
			"arguments": map[string]any{"type": "object", "description": "Arguments passed to the target"},
		},
		"required": []string{"tool"},
	}
}

func (t *callToolTool) CanInvoke() []string { return t.allowed }

func (t *callToolTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	target, ok := args["tool"].(string)
	if !ok || target == "" {
		return nil, fmt.Errorf("field 'tool' must be non-empty string")
	}

	callArgs, _ := args["arguments"].(map[string]any)

	res, err := tc.Invoke(target, callArgs)
	if err != nil {
		return nil, err
	}

	if !res.Success {
		return nil, fmt.Errorf("%s failed: %s", target, res.Error)
	}

	return res.Data, nil
}
