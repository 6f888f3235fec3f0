// Package invoker executes tool calls. Each call passes, in order, through
// lookup, recursion depth and chain deadline checks, the caller's allow-list,
// input validation, optional deduplication and a timeout race against the
// handler. Handler failures can be recovered per call. Every call leaves an
// execution log entry and, when a tracer is configured, a span.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/tool"
)

const (
	statusSuccess = string(core.StatusSuccess)
	statusError   = string(core.StatusError)
	statusCached  = string(core.StatusCached)
)

// Invoker runs tool calls against a Registry.
type Invoker struct {
	registry *tool.Registry
	logger   logging.Logger
	tracer   Tracer
	metrics  *metrics
	opts     Options
}

// New creates an Invoker for the tools in reg.
func New(reg *tool.Registry, optFns ...func(o *Options)) *Invoker {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Tracer == nil {
		opts.Tracer = noopTracer{}
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = defaultOptions().MeterProvider
	}
	if reg == nil {
		reg = tool.NewRegistry()
	}

	return &Invoker{
		registry: reg,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		metrics:  newMetrics(opts.MeterProvider),
		opts:     opts,
	}
}

// Registry returns the registry the invoker resolves tools from.
func (i *Invoker) Registry() *tool.Registry { return i.registry }

// Invoke calls the named tool. A nil ic starts a fresh chain.
//
// Lookup, depth, chain deadline and permission violations are returned as
// errors before the handler runs. Arguments that fail validation yield a
// failed Result and a nil error. Handler errors and panics are passed to the
// OnError recovery when present; otherwise they are returned as
// *core.ToolInvocationError.
//
// A timeout only bounds the caller's wait: the handler's context is cancelled
// but a handler that ignores it keeps running in the background.
func (i *Invoker) Invoke(ctx context.Context, name string, args map[string]any, ic *core.InvocationContext, opts ...CallOption) (*core.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ic == nil {
		ic = core.NewContext(nil)
	}

	callOpts := core.ApplyCallOptions(opts...)
	start := time.Now()
	inputHash := util.HashValue(args)

	i.logger.Debug("tool.invoke.start",
		"tool", name,
		"correlation_id", ic.CorrelationID,
		"depth", ic.Depth,
		"parent", ic.ParentToolName,
	)

	entry, err := i.precheck(name, ic)
	if err != nil {
		i.reject(ctx, ic, name, inputHash, start, err)
		return nil, err
	}

	spanID := i.tracer.StartToolSpan(ic, name, inputHash)

	c := &call{
		ctx:       ctx,
		name:      name,
		args:      args,
		ic:        ic,
		opts:      callOpts,
		entry:     entry,
		spanID:    spanID,
		inputHash: inputHash,
		start:     start,
	}

	if err := entry.Validate(args); err != nil {
		i.logger.Warn("tool.invoke.validation_failed", "tool", name, "error", err.Error())
		return i.finish(c, core.Failure(err.Error()), nil, statusError), nil
	}

	if !callOpts.Deduplicate {
		res, err := i.execute(c)
		return i.finish(c, res, err, statusOf(res, err)), err
	}

	key := dedupKey(name, args, ic)
	if ic.HoldsDedupKey(key) {
		i.logger.Debug("tool.invoke.dedup_reentrant", "tool", name, "correlation_id", ic.CorrelationID, "depth", ic.Depth)

		res, err := i.execute(c)
		return i.finish(c, res, err, statusOf(res, err)), err
	}

	cache := ic.Dedup()

	for {
		leader, wait := cache.Acquire(key)
		if leader {
			break
		}

		cached, werr := wait(ctx)
		if werr != nil {
			err := core.NewToolInvocationError(name, core.CodeCancelled, werr)
			return i.finish(c, nil, err, statusError), err
		}

		if cached != nil {
			i.logger.Debug("tool.invoke.dedup_hit", "tool", name, "correlation_id", ic.CorrelationID)

			res := cached.Clone()
			res.Metadata.Cached = true

			return i.finish(c, res, nil, statusCached), nil
		}
		// the leader failed and released the key; retry as leader
	}

	c.ic = ic.WithDedupKey(key)

	res, err := i.execute(c)
	res = i.finish(c, res, err, statusOf(res, err))
	cache.Release(key, res)

	return res, err
}

// call bundles the per-invocation state threaded through execute and finish.
type call struct {
	ctx       context.Context
	name      string
	args      map[string]any
	ic        *core.InvocationContext
	opts      core.CallOptions
	entry     *tool.Entry
	spanID    string
	inputHash string
	start     time.Time
}

// precheck runs lookup, depth, chain deadline and permission checks.
func (i *Invoker) precheck(name string, ic *core.InvocationContext) (*tool.Entry, error) {
	entry, ok := i.registry.Lookup(name)
	if !ok {
		return nil, &core.ToolNotFoundError{ToolName: name}
	}

	if ic.Depth >= ic.MaxDepth {
		return nil, &core.RecursionDepthError{ToolName: name, Depth: ic.Depth, MaxDepth: ic.MaxDepth}
	}

	if ic.ChainExpired() {
		return nil, &core.ChainTimeoutError{ToolName: name, Elapsed: ic.Elapsed(), Budget: ic.ChainTimeout}
	}

	if !ic.IsRoot() {
		parent, ok := i.registry.Lookup(ic.ParentToolName)
		if !ok {
			return nil, &core.ToolInvocationError{
				Tool:    name,
				Message: fmt.Sprintf("calling tool %s is not registered", ic.ParentToolName),
				Code:    core.CodePermissionDenied,
			}
		}

		if !parent.Definition.Allows(name) {
			return nil, &core.ToolInvocationError{
				Tool:    name,
				Message: fmt.Sprintf("%s is not allowed to invoke %s", ic.ParentToolName, name),
				Code:    core.CodePermissionDenied,
			}
		}
	}

	return entry, nil
}

// reject records a call that failed before a span was opened.
func (i *Invoker) reject(ctx context.Context, ic *core.InvocationContext, name, inputHash string, start time.Time, err error) {
	dur := time.Since(start)
	msg := core.ErrorMessage(err)

	ic.AppendLog(core.ExecutionLogEntry{
		ToolName:   name,
		InputHash:  inputHash,
		DurationMs: dur.Milliseconds(),
		Status:     core.StatusError,
		Error:      msg,
		Depth:      ic.Depth,
	})

	i.tracer.RecordToolError(ic, name, msg)
	i.metrics.record(ctx, name, statusError, dur)

	i.logger.Warn("tool.invoke.rejected",
		"tool", name,
		"correlation_id", ic.CorrelationID,
		"depth", ic.Depth,
		"error", msg,
	)
}

type outcome struct {
	data any
	err  error
}

// execute races the handler against the effective timeout and applies
// recovery to handler failures.
func (i *Invoker) execute(c *call) (*core.Result, error) {
	timeout, bound, bounded := effectiveTimeout(c.opts, c.ic)

	execCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	tc := core.NewToolContext(execCtx, c.ic, c.name, c.spanID, i.Invoke, i.logger)

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("tool.invoke.panic", "tool", c.name, "recover", r)
				done <- outcome{err: core.NewPanicError(r)}
			}
		}()

		data, err := c.entry.Handler(tc, c.args)
		done <- outcome{data: data, err: err}
	}()

	var timer <-chan time.Time
	if bounded {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case o := <-done:
		if o.err == nil {
			return core.Success(o.data), nil
		}
		return i.applyRecovery(c, o.err)
	case <-timer:
		i.logger.Warn("tool.invoke.timeout", "tool", c.name, "timeout_ms", timeout.Milliseconds(), "bound", bound)
		return nil, &core.ToolTimeoutError{ToolName: c.name, Timeout: timeout, Bound: bound}
	case <-c.ctx.Done():
		return nil, core.NewToolInvocationError(c.name, core.CodeCancelled, c.ctx.Err())
	}
}

// applyRecovery applies the OnError recovery to a handler failure.
func (i *Invoker) applyRecovery(c *call, herr error) (*core.Result, error) {
	if c.opts.OnError == nil {
		return nil, wrapHandlerError(c.name, herr)
	}

	res, rerr := c.opts.OnError(c.ctx, herr)
	if rerr != nil {
		return nil, &core.ToolInvocationError{
			Tool:    c.name,
			Message: core.ErrorMessage(rerr),
			Code:    core.CodeRecovery,
			Err:     rerr,
		}
	}

	i.logger.Debug("tool.invoke.recovered", "tool", c.name, "error", handlerMessage(herr))

	if res == nil {
		return core.Failure(handlerMessage(herr)), nil
	}

	return res, nil
}

// finish stamps metadata, appends the execution log entry, closes the span
// and records metrics.
func (i *Invoker) finish(c *call, res *core.Result, err error, status string) *core.Result {
	dur := time.Since(c.start)

	if res != nil {
		res.Metadata.ToolName = c.name
		res.Metadata.CorrelationID = c.ic.CorrelationID
		res.Metadata.Depth = c.ic.Depth
		res.Metadata.DurationMs = dur.Milliseconds()
	}

	var (
		success bool
		summary string
		errMsg  string
	)

	switch {
	case err != nil:
		errMsg = handlerMessage(err)
	case res != nil && res.Success:
		success = true
		summary = util.Summarize(res.Data, i.opts.SummaryLength)
	case res != nil:
		errMsg = res.Error
	}

	logStatus := core.LogStatus(status)
	if !success {
		logStatus = core.StatusError
	}

	c.ic.AppendLog(core.ExecutionLogEntry{
		ToolName:      c.name,
		InputHash:     c.inputHash,
		OutputSummary: summary,
		DurationMs:    dur.Milliseconds(),
		Status:        logStatus,
		Error:         errMsg,
		Depth:         c.ic.Depth,
	})

	i.tracer.EndToolSpan(c.spanID, success, summary, errMsg)
	i.metrics.record(c.ctx, c.name, string(logStatus), dur)

	var logErr error
	if !success {
		logErr = errors.New(errMsg)
	}

	if tl, ok := i.logger.(logging.ToolCallLogger); ok {
		tl.LogToolCall(c.name, dur, success, logErr)
	} else if success {
		i.logger.Info("tool.invoke.success", "tool", c.name, "duration_ms", dur.Milliseconds(), "status", string(logStatus))
	} else {
		i.logger.Error("tool.invoke.error", "tool", c.name, "duration_ms", dur.Milliseconds(), "error", errMsg)
	}

	return res
}

// effectiveTimeout picks the tighter of the per-call timeout and the
// remaining chain budget.
func effectiveTimeout(opts core.CallOptions, ic *core.InvocationContext) (time.Duration, string, bool) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = ic.Timeout
	}

	bound := core.BoundCall
	bounded := timeout > 0

	if remaining, ok := ic.RemainingBudget(); ok {
		if remaining < 0 {
			remaining = 0
		}
		if !bounded || remaining < timeout {
			timeout = remaining
			bound = core.BoundChain
			bounded = true
		}
	}

	return timeout, bound, bounded
}

func dedupKey(name string, args map[string]any, ic *core.InvocationContext) string {
	canon, err := util.CanonicalJSON(args)
	if err != nil {
		return name + "|" + ic.CorrelationID + "|#" + util.HashValue(args)
	}
	return name + "|" + ic.CorrelationID + "|" + string(canon)
}

func statusOf(res *core.Result, err error) string {
	if err != nil || res == nil || !res.Success {
		return statusError
	}
	return statusSuccess
}

// wrapHandlerError attaches the tool name and EXECUTION_ERROR code. Errors
// already describing this tool pass through unchanged.
func wrapHandlerError(name string, err error) error {
	var tie *core.ToolInvocationError
	if errors.As(err, &tie) && tie.Tool == name {
		return err
	}

	return &core.ToolInvocationError{
		Tool:    name,
		Message: handlerMessage(err),
		Code:    core.CodeExecution,
		Err:     err,
	}
}

// handlerMessage normalizes handler failures; panics report the panic value.
func handlerMessage(err error) string {
	var p *core.PanicError
	if errors.As(err, &p) {
		return core.ErrorMessage(p.Value)
	}
	return core.ErrorMessage(err)
}
