// Package tool defines tool definitions and the registry that owns them.
// A definition couples a unique name with a description, a JSON schema input
// contract, the allow-list of tools it may call and an optional concurrency
// hint. The registry compiles each contract once at registration time.
package tool

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/toolmesh/core"
)

// Wildcard in CanInvoke permits calling any registered tool.
const Wildcard = "*"

var (
	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrInvalidDefinition is returned for malformed definitions.
	ErrInvalidDefinition = errors.New("invalid tool definition")
)

// Definition describes a tool. It is immutable once registered.
type Definition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	// CanInvoke lists the tools this tool may call. Wildcard allows all; an
	// empty list allows none.
	CanInvoke []string `json:"can_invoke,omitempty" yaml:"can_invoke,omitempty"`
	// MaxConcurrency bounds parallel executions in batch calls. Zero means
	// no per-tool bound.
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
}

// Allows reports whether the tool may call target.
func (d Definition) Allows(target string) bool {
	return slices.Contains(d.CanInvoke, Wildcard) || slices.Contains(d.CanInvoke, target)
}

// clone deep-copies the allow-list and the input schema so callers cannot
// mutate registered state.
func (d Definition) clone() Definition {
	d.CanInvoke = slices.Clone(d.CanInvoke)
	if d.InputSchema != nil {
		d.InputSchema = cloneValue(d.InputSchema).(map[string]any)
	}
	return d
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

// Tool is implemented by types that carry their own definition and handler.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments.
	Call(tc *core.ToolContext, args map[string]any) (any, error)
}

// Delegator is implemented by tools that call other tools.
type Delegator interface {
	CanInvoke() []string
}

// DefinitionOf derives the Definition of a Tool.
func DefinitionOf(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Parameters(),
	}

	if d, ok := t.(Delegator); ok {
		def.CanInvoke = d.CanInvoke()
	}

	if c, ok := t.(interface{ MaxConcurrency() int }); ok {
		def.MaxConcurrency = c.MaxConcurrency()
	}

	return def
}

// ValidationError reports arguments that violate a tool's input contract.
type ValidationError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Message)
}

// Unwrap returns the schema validator's error.
func (e *ValidationError) Unwrap() error { return e.Err }
