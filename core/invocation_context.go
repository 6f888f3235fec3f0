package core

import (
	"sync"
	"time"
)

// DefaultMaxDepth is the nesting bound applied when no MaxDepth is configured.
const DefaultMaxDepth = 10

// LogStatus is the outcome recorded for an execution log entry.
type LogStatus string

const (
	StatusSuccess LogStatus = "success"
	StatusError   LogStatus = "error"
	StatusCached  LogStatus = "cached"
)

// ExecutionLogEntry is one append-only record of a tool call within a chain.
type ExecutionLogEntry struct {
	ToolName      string    `json:"tool_name"`
	InputHash     string    `json:"input_hash"`
	OutputSummary string    `json:"output_summary,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	Status        LogStatus `json:"status"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Depth         int       `json:"depth"`
}

// ContextOptions overrides defaults when constructing an InvocationContext.
type ContextOptions struct {
	// CorrelationID is only honoured for root contexts.
	CorrelationID string
	MaxDepth      int
	Timeout       time.Duration
	ChainTimeout  time.Duration
	// State replaces the shared store. Ignored when a parent is given.
	State *SharedState
}

// chainState is shared by every context of one chain (same correlation id).
type chainState struct {
	mu    sync.Mutex
	log   []ExecutionLogEntry
	dedup *DedupCache
}

// InvocationContext carries the per-call view of a chain: identity, nesting
// depth, deadlines, the shared key/value store and the execution log. The
// store and the log are referenced, not copied, by descendant contexts so
// every call of a chain observes the same state.
type InvocationContext struct {
	CorrelationID  string
	Depth          int
	MaxDepth       int
	ParentToolName string
	ChainStart     time.Time
	// Timeout bounds a single call; zero means unbounded.
	Timeout time.Duration
	// ChainTimeout bounds the whole chain measured from ChainStart; zero means unbounded.
	ChainTimeout time.Duration
	// ParentSpanID links spans of nested calls to the span of their caller.
	ParentSpanID string
	// DetachedSpan marks calls that run alongside siblings. Their spans are
	// not pushed onto the chain's active span stack and, without a
	// ParentSpanID, start as chain roots.
	DetachedSpan bool

	state *SharedState
	chain *chainState
	// held lists the dedup keys led by enclosing calls of this context.
	held *heldKey
}

type heldKey struct {
	key  string
	next *heldKey
}

// NewContext creates an invocation context. With a parent the new context
// joins the parent's chain at the same depth; without one it starts a fresh
// chain with a new correlation id at depth 0.
func NewContext(parent *InvocationContext, optFns ...func(o *ContextOptions)) *InvocationContext {
	opts := ContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	var ic *InvocationContext

	if parent != nil {
		cp := *parent
		ic = &cp
		ic.ensureShared()
	} else {
		id := opts.CorrelationID
		if id == "" {
			id = NewID()
		}

		state := opts.State
		if state == nil {
			state = NewSharedState()
		}

		ic = &InvocationContext{
			CorrelationID: id,
			MaxDepth:      DefaultMaxDepth,
			ChainStart:    time.Now(),
			state:         state,
			chain:         newChainState(),
		}
	}

	if opts.MaxDepth > 0 {
		ic.MaxDepth = opts.MaxDepth
	}
	if opts.Timeout > 0 {
		ic.Timeout = opts.Timeout
	}
	if opts.ChainTimeout > 0 {
		ic.ChainTimeout = opts.ChainTimeout
	}
	if ic.MaxDepth <= 0 {
		ic.MaxDepth = DefaultMaxDepth
	}

	return ic
}

// Child derives the context for a nested call made by callerTool: same chain,
// depth + 1 and callerTool as parent.
func (ic *InvocationContext) Child(callerTool string) *InvocationContext {
	ic.ensureShared()

	child := *ic
	child.Depth = ic.Depth + 1
	child.ParentToolName = callerTool
	child.ParentSpanID = ""
	child.DetachedSpan = false

	return &child
}

// IsRoot reports whether the context has no calling tool.
func (ic *InvocationContext) IsRoot() bool { return ic.ParentToolName == "" }

// State returns the chain's shared key/value store.
func (ic *InvocationContext) State() *SharedState {
	ic.ensureShared()
	return ic.state
}

// Dedup returns the chain-scoped deduplication cache.
func (ic *InvocationContext) Dedup() *DedupCache {
	ic.ensureShared()
	return ic.chain.dedup
}

// WithDedupKey returns a copy of ic whose descendants see key as led by an
// enclosing call.
func (ic *InvocationContext) WithDedupKey(key string) *InvocationContext {
	ic.ensureShared()

	cp := *ic
	cp.held = &heldKey{key: key, next: ic.held}

	return &cp
}

// HoldsDedupKey reports whether an enclosing call leads key. Waiting on such
// a key would block on the caller itself.
func (ic *InvocationContext) HoldsDedupKey(key string) bool {
	for h := ic.held; h != nil; h = h.next {
		if h.key == key {
			return true
		}
	}
	return false
}

// AppendLog records an entry in the chain's execution log.
func (ic *InvocationContext) AppendLog(e ExecutionLogEntry) {
	ic.ensureShared()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	ic.chain.mu.Lock()
	ic.chain.log = append(ic.chain.log, e)
	ic.chain.mu.Unlock()
}

// ExecutionLog returns a snapshot of the chain's execution log in append order.
func (ic *InvocationContext) ExecutionLog() []ExecutionLogEntry {
	ic.ensureShared()

	ic.chain.mu.Lock()
	defer ic.chain.mu.Unlock()

	out := make([]ExecutionLogEntry, len(ic.chain.log))
	copy(out, ic.chain.log)

	return out
}

// Elapsed returns the wall-clock time spent in the chain so far.
func (ic *InvocationContext) Elapsed() time.Duration { return time.Since(ic.ChainStart) }

// RemainingBudget returns the unspent chain budget. The boolean is false when
// the chain is unbounded.
func (ic *InvocationContext) RemainingBudget() (time.Duration, bool) {
	if ic.ChainTimeout <= 0 {
		return 0, false
	}
	return ic.ChainTimeout - ic.Elapsed(), true
}

// ChainExpired reports whether more time than ChainTimeout has elapsed.
func (ic *InvocationContext) ChainExpired() bool {
	return ic.ChainTimeout > 0 && ic.Elapsed() > ic.ChainTimeout
}

// ensureShared lazily wires the shared store for zero-value contexts built
// with a struct literal.
func (ic *InvocationContext) ensureShared() {
	if ic.state == nil {
		ic.state = NewSharedState()
	}
	if ic.chain == nil {
		ic.chain = newChainState()
	}
	if ic.ChainStart.IsZero() {
		ic.ChainStart = time.Now()
	}
}

func newChainState() *chainState {
	return &chainState{dedup: NewDedupCache()}
}

// SharedState is a concurrency-safe key/value store shared by all calls of a
// chain. Concurrent writers follow last-write-wins semantics.
type SharedState struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewSharedState creates an empty store.
func NewSharedState() *SharedState {
	return &SharedState{data: map[string]any{}}
}

// Get retrieves the value stored under k.
func (s *SharedState) Get(k string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[k]

	return v, ok
}

// Set stores v under k.
func (s *SharedState) Set(k string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[k] = v
}

// Delete removes k.
func (s *SharedState) Delete(k string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, k)
}

// Snapshot returns a shallow copy of the store.
func (s *SharedState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}

	return out
}
