package testutil

import (
	"time"

	"github.com/hupe1980/toolmesh/core"
)

// ContextBuilder helps construct invocation contexts with fluent chaining for tests.
// Example:
//
//	ic := NewContextBuilder().Correlation("c-1").Depth(2).Parent("caller").Build()
type ContextBuilder struct {
	corr         string
	depth        int
	maxDepth     int
	parent       string
	timeout      time.Duration
	chainTimeout time.Duration
	started      time.Time
	state        map[string]any
}

// NewContextBuilder creates a builder for a root context.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{state: map[string]any{}}
}

// Correlation fixes the correlation id (chainable).
func (b *ContextBuilder) Correlation(id string) *ContextBuilder { b.corr = id; return b }

// Depth sets the nesting depth (chainable).
func (b *ContextBuilder) Depth(d int) *ContextBuilder { b.depth = d; return b }

// MaxDepth sets the nesting bound (chainable).
func (b *ContextBuilder) MaxDepth(d int) *ContextBuilder { b.maxDepth = d; return b }

// Parent sets the calling tool (chainable).
func (b *ContextBuilder) Parent(name string) *ContextBuilder { b.parent = name; return b }

// Timeout sets the per-call timeout (chainable).
func (b *ContextBuilder) Timeout(d time.Duration) *ContextBuilder { b.timeout = d; return b }

// ChainTimeout sets the chain budget (chainable).
func (b *ContextBuilder) ChainTimeout(d time.Duration) *ContextBuilder { b.chainTimeout = d; return b }

// StartedAgo moves the chain start into the past (chainable).
func (b *ContextBuilder) StartedAgo(d time.Duration) *ContextBuilder {
	b.started = time.Now().Add(-d)
	return b
}

// State pre-populates the shared store (chainable).
func (b *ContextBuilder) State(key string, val any) *ContextBuilder {
	b.state[key] = val
	return b
}

// Build returns the configured *core.InvocationContext.
func (b *ContextBuilder) Build() *core.InvocationContext {
	state := core.NewSharedState()
	for k, v := range b.state {
		state.Set(k, v)
	}

	ic := core.NewContext(nil, func(o *core.ContextOptions) {
		o.CorrelationID = b.corr
		o.MaxDepth = b.maxDepth
		o.Timeout = b.timeout
		o.ChainTimeout = b.chainTimeout
		o.State = state
	})

	ic.Depth = b.depth
	ic.ParentToolName = b.parent

	if !b.started.IsZero() {
		ic.ChainStart = b.started
	}

	return ic
}
