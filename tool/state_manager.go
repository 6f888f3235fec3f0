package tool

import (
	"fmt"
	"sort"

	"github.com/hupe1980/toolmesh/core"
)

// StateManagerTool exposes the chain's shared key/value store to callers.
// Values written by one call are visible to every later call carrying the
// same correlation id, including nested calls.
type StateManagerTool struct {
	name        string
	description string
}

// NewStateManagerTool creates a new state management tool named "state_manager".
func NewStateManagerTool() *StateManagerTool {
	return &StateManagerTool{
		name: "state_manager",
		description: "Manages the shared state of the current call chain. " +
			"Supports operations: get_state, set_state, delete_state, list_state.",
	}
}

// Name returns the tool identifier.
func (t *StateManagerTool) Name() string {
	return t.name
}

// Description returns the tool description.
func (t *StateManagerTool) Description() string {
	return t.description
}

// Parameters returns the JSON schema for tool parameters.
func (t *StateManagerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get_state", "set_state", "delete_state", "list_state"},
				"description": "The state operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state/set_state/delete_state operations",
			},
			"value": map[string]any{
				"description": "Value for set_state operations (any type)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface with structured arguments.
func (t *StateManagerTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "get_state":
		return t.handleGetState(args, toolCtx)
	case "set_state":
		return t.handleSetState(args, toolCtx)
	case "delete_state":
		return t.handleDeleteState(args, toolCtx)
	case "list_state":
		return t.handleListState(toolCtx)
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

func (t *StateManagerTool) handleGetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key parameter is required for get_state operation")
	}

	value, exists := toolCtx.GetState(key)

	return map[string]any{
		"key":    key,
		"exists": exists,
		"value":  value,
	}, nil
}

func (t *StateManagerTool) handleSetState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key parameter is required for set_state operation")
	}

	value := args["value"]

	toolCtx.SetState(key, value)

	return map[string]any{
		"key":     key,
		"value":   value,
		"success": true,
	}, nil
}

func (t *StateManagerTool) handleDeleteState(args map[string]any, toolCtx *core.ToolContext) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, fmt.Errorf("key parameter is required for delete_state operation")
	}

	_, existed := toolCtx.GetState(key)
	toolCtx.InvocationContext().State().Delete(key)

	return map[string]any{
		"key":     key,
		"deleted": existed,
	}, nil
}

func (t *StateManagerTool) handleListState(toolCtx *core.ToolContext) (any, error) {
	snapshot := toolCtx.InvocationContext().State().Snapshot()

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return map[string]any{
		"keys":  keys,
		"count": len(keys),
	}, nil
}
