package testutil

import (
	"github.com/hupe1980/toolmesh/tool"
)

// DefinitionBuilder provides a fluent helper for constructing tool definitions in tests.
// Example:
//
//	def := NewDefinitionBuilder("double").NumberArg("value").CanInvoke("other").Build()
type DefinitionBuilder struct {
	def      tool.Definition
	props    map[string]any
	required []string
}

// NewDefinitionBuilder creates a builder for a tool named name.
func NewDefinitionBuilder(name string) *DefinitionBuilder {
	return &DefinitionBuilder{
		def:   tool.Definition{Name: name, Description: name + " tool"},
		props: map[string]any{},
	}
}

// Description overrides the default description (chainable).
func (b *DefinitionBuilder) Description(d string) *DefinitionBuilder { b.def.Description = d; return b }

// CanInvoke appends names to the allow-list (chainable).
func (b *DefinitionBuilder) CanInvoke(names ...string) *DefinitionBuilder {
	b.def.CanInvoke = append(b.def.CanInvoke, names...)
	return b
}

// MaxConcurrency sets the batch concurrency hint (chainable).
func (b *DefinitionBuilder) MaxConcurrency(n int) *DefinitionBuilder { b.def.MaxConcurrency = n; return b }

// NumberArg adds a required number property (chainable).
func (b *DefinitionBuilder) NumberArg(name string) *DefinitionBuilder {
	return b.arg(name, "number")
}

// StringArg adds a required string property (chainable).
func (b *DefinitionBuilder) StringArg(name string) *DefinitionBuilder {
	return b.arg(name, "string")
}

func (b *DefinitionBuilder) arg(name, typ string) *DefinitionBuilder {
	b.props[name] = map[string]any{"type": typ}
	b.required = append(b.required, name)
	return b
}

// Build returns the definition. A schema is only attached when arguments were declared.
func (b *DefinitionBuilder) Build() tool.Definition {
	def := b.def
	def.CanInvoke = append([]string(nil), b.def.CanInvoke...)

	if len(b.props) > 0 {
		def.InputSchema = map[string]any{
			"type":       "object",
			"properties": b.props,
			"required":   append([]string(nil), b.required...),
		}
	}

	return def
}
