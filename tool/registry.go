package tool

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
)

// Entry is a registered definition together with its handler.
type Entry struct {
	Definition Definition
	Handler    core.Handler

	schema *jsonschema.Schema
}

// Validate checks args against the compiled input contract. Entries without
// a contract accept any arguments.
func (e *Entry) Validate(args map[string]any) error {
	if e.schema == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	doc, err := util.NormalizeJSON(args)
	if err != nil {
		return &ValidationError{Tool: e.Definition.Name, Message: err.Error(), Err: err}
	}

	if err := e.schema.Validate(doc); err != nil {
		return &ValidationError{Tool: e.Definition.Name, Message: err.Error(), Err: err}
	}

	return nil
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry owns tool definitions. Names are case-sensitive and unique.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	logger  logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		entries: map[string]*Entry{},
		logger:  opts.Logger,
	}
}

// Register adds a definition with its handler. It fails on duplicate names,
// a missing handler or an input contract that does not compile.
func (r *Registry) Register(def Definition, h core.Handler) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}

	if h == nil {
		return fmt.Errorf("%w: handler for %s is nil", ErrInvalidDefinition, def.Name)
	}

	if def.MaxConcurrency < 0 {
		return fmt.Errorf("%w: negative max concurrency for %s", ErrInvalidDefinition, def.Name)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	// clone so later changes to the caller's definition are not observed
	r.entries[def.Name] = &Entry{
		Definition: def.clone(),
		Handler:    h,
		schema:     schema,
	}
	r.order = append(r.order, def.Name)

	r.logger.Debug("tool.registry.registered", "tool", def.Name, "can_invoke", def.CanInvoke)

	return nil
}

// RegisterTool registers a Tool implementation.
func (r *Registry) RegisterTool(t Tool) error {
	return r.Register(DefinitionOf(t), t.Call)
}

// MustRegister is Register that panics on error. Intended for process setup.
func (r *Registry) MustRegister(def Definition, h core.Handler) {
	if err := r.Register(def, h); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of the entry registered under name. Changing the
// copy's definition does not affect the registry.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}

	cp := *e
	cp.Definition = e.Definition.clone()

	return &cp, true
}

// List returns a snapshot of all definitions in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].Definition.clone())
	}

	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

func compileSchema(def Definition) (*jsonschema.Schema, error) {
	if len(def.InputSchema) == 0 {
		return nil, nil
	}

	doc, err := util.NormalizeJSON(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("%w: schema of %s: %v", ErrInvalidDefinition, def.Name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("%w: add schema of %s: %v", ErrInvalidDefinition, def.Name, err)
	}

	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: compile schema of %s: %v", ErrInvalidDefinition, def.Name, err)
	}

	return schema, nil
}
