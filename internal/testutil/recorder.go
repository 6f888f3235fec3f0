package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/toolmesh/core"
)

// Recorder wraps a handler and records every call it receives.
type Recorder struct {
	handler core.Handler
	calls   atomic.Int64

	mu    sync.Mutex
	args  []map[string]any
	depth []int
}

// NewRecorder wraps h. A nil h returns the arguments unchanged.
func NewRecorder(h core.Handler) *Recorder {
	if h == nil {
		h = func(_ *core.ToolContext, args map[string]any) (any, error) { return args, nil }
	}
	return &Recorder{handler: h}
}

// Handler returns the recording handler.
func (r *Recorder) Handler() core.Handler {
	return func(tc *core.ToolContext, args map[string]any) (any, error) {
		r.calls.Add(1)

		r.mu.Lock()
		r.args = append(r.args, args)
		r.depth = append(r.depth, tc.Depth())
		r.mu.Unlock()

		return r.handler(tc, args)
	}
}

// Calls returns how often the handler ran.
func (r *Recorder) Calls() int { return int(r.calls.Load()) }

// Args returns the arguments of every call in arrival order.
func (r *Recorder) Args() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]map[string]any(nil), r.args...)
}

// Depths returns the nesting depth observed by every call.
func (r *Recorder) Depths() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int(nil), r.depth...)
}
