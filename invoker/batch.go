package invoker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
)

// ErrSkipped is reported for sequence calls that did not run because an
// earlier call with StopOnError failed.
var ErrSkipped = errors.New("skipped after earlier failure")

// Call is one entry of a batch or sequence.
type Call struct {
	Tool    string         `json:"tool" yaml:"tool"`
	Args    map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Options []CallOption   `json:"-" yaml:"-"`
	// StopOnError skips the remaining calls of a sequence when this call fails.
	StopOnError bool `json:"stop_on_error,omitempty" yaml:"stop_on_error,omitempty"`
}

// CallResult is the outcome of one Call. Exactly one of Result and Err is
// set, except for validation failures which carry a failed Result.
type CallResult struct {
	Index  int          `json:"index"`
	Tool   string       `json:"tool"`
	Result *core.Result `json:"result,omitempty"`
	Err    error        `json:"-"`
}

// Failed reports whether the call errored or returned a failed result.
func (r CallResult) Failed() bool {
	return r.Err != nil || r.Result == nil || !r.Result.Success
}

// InvokeBatch runs calls in parallel as siblings under ic and returns the
// results in input order. Parallelism is capped by MaxBatchConcurrency and,
// per tool, by the definition's MaxConcurrency hint. One call's failure never
// affects the others.
func (i *Invoker) InvokeBatch(ctx context.Context, calls []Call, ic *core.InvocationContext, opts ...CallOption) []CallResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	if ic == nil {
		ic = core.NewContext(nil)
	}

	results := make([]CallResult, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = i.invokeOne(ctx, 0, calls[0], ic, opts)
		return results
	}

	maxPar := i.opts.MaxBatchConcurrency
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	sem := make(chan struct{}, maxPar)
	toolSems := i.toolSemaphores(calls)
	sib := i.siblingContext(ic)

	var wg sync.WaitGroup

	batchStart := time.Now()

	for idx := range calls {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, c Call) {
			defer wg.Done()
			defer func() { <-sem }()

			if ts, ok := toolSems[c.Tool]; ok {
				ts <- struct{}{}
				defer func() { <-ts }()
			}

			results[idx] = i.invokeOne(ctx, idx, c, sib, opts)
		}(idx, calls[idx])
	}

	wg.Wait()

	i.logger.Debug("tool.batch.complete",
		"correlation_id", ic.CorrelationID,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// InvokeSequence runs calls one after another under ic. A failing call is
// reported in its slot; later calls still run unless it set StopOnError.
func (i *Invoker) InvokeSequence(ctx context.Context, calls []Call, ic *core.InvocationContext, opts ...CallOption) []CallResult {
	if len(calls) == 0 {
		return nil
	}

	if ic == nil {
		ic = core.NewContext(nil)
	}

	results := make([]CallResult, len(calls))
	stopped := false

	for idx, c := range calls {
		if stopped {
			results[idx] = CallResult{Index: idx, Tool: c.Tool, Err: ErrSkipped}
			continue
		}

		results[idx] = i.invokeOne(ctx, idx, c, ic, opts)

		if c.StopOnError && results[idx].Failed() {
			i.logger.Warn("tool.sequence.stopped", "tool", c.Tool, "index", idx, "correlation_id", ic.CorrelationID)
			stopped = true
		}
	}

	return results
}

func (i *Invoker) invokeOne(ctx context.Context, idx int, c Call, ic *core.InvocationContext, batchOpts []CallOption) CallResult {
	opts := make([]CallOption, 0, len(batchOpts)+len(c.Options))
	opts = append(opts, batchOpts...)
	opts = append(opts, c.Options...)

	res, err := i.Invoke(ctx, c.Tool, c.Args, ic, opts...)

	return CallResult{Index: idx, Tool: c.Tool, Result: res, Err: err}
}

// siblingContext pins the span parent of parallel calls to the caller's span
// or the chain's active span so siblings never nest under each other.
func (i *Invoker) siblingContext(ic *core.InvocationContext) *core.InvocationContext {
	sib := core.NewContext(ic)
	sib.DetachedSpan = true

	if sib.ParentSpanID == "" {
		if active, ok := i.tracer.ActiveSpan(ic.CorrelationID); ok {
			sib.ParentSpanID = active
		}
	}

	return sib
}

// toolSemaphores builds one semaphore per tool with a MaxConcurrency hint.
func (i *Invoker) toolSemaphores(calls []Call) map[string]chan struct{} {
	sems := map[string]chan struct{}{}

	for _, c := range calls {
		if _, seen := sems[c.Tool]; seen {
			continue
		}

		entry, ok := i.registry.Lookup(c.Tool)
		if !ok || entry.Definition.MaxConcurrency <= 0 {
			continue
		}

		sems[c.Tool] = make(chan struct{}, entry.Definition.MaxConcurrency)
	}

	return sems
}
