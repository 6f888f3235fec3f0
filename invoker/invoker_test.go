package invoker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/testutil"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/tool"
)

func doubleHandler(_ *core.ToolContext, args map[string]any) (any, error) {
	v, _ := util.ToFloat(args["value"])
	return v * 2, nil
}

func newInvoker(t *testing.T, optFns ...func(o *invoker.Options)) (*invoker.Invoker, *tool.Registry) {
	t.Helper()
	reg := tool.NewRegistry()
	return invoker.New(reg, optFns...), reg
}

func TestInvoke_Double(t *testing.T) {
	inv, reg := newInvoker(t)
	require.NoError(t, reg.Register(testutil.NewDefinitionBuilder("double").NumberArg("value").Build(), doubleHandler))

	ic := core.NewContext(nil)
	res, err := inv.Invoke(context.Background(), "double", map[string]any{"value": 5}, ic)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 10.0, res.Data)
	assert.Equal(t, "double", res.Metadata.ToolName)
	assert.Equal(t, ic.CorrelationID, res.Metadata.CorrelationID)
	assert.False(t, res.Metadata.Cached)

	log := ic.ExecutionLog()
	require.Len(t, log, 1)
	assert.Equal(t, core.StatusSuccess, log[0].Status)
	assert.Equal(t, "double", log[0].ToolName)
	assert.Equal(t, "10", log[0].OutputSummary)
	assert.Equal(t, util.HashValue(map[string]any{"value": 5}), log[0].InputHash)
	assert.Equal(t, 0, log[0].Depth)
}

func TestInvoke_NilContextStartsChain(t *testing.T) {
	inv, reg := newInvoker(t)
	require.NoError(t, reg.Register(tool.Definition{Name: "echo"}, testutil.NewRecorder(nil).Handler()))

	res, err := inv.Invoke(context.Background(), "echo", map[string]any{"a": 1}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Metadata.CorrelationID)
	assert.Equal(t, 0, res.Metadata.Depth)
}

func TestInvoke_ToolNotFound(t *testing.T) {
	inv, _ := newInvoker(t)
	ic := core.NewContext(nil)

	res, err := inv.Invoke(context.Background(), "missing", nil, ic)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	var nf *core.ToolNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ToolName)

	log := ic.ExecutionLog()
	require.Len(t, log, 1)
	assert.Equal(t, core.StatusError, log[0].Status)
}

func TestInvoke_RecursionDepth(t *testing.T) {
	inv, reg := newInvoker(t)

	rec := testutil.NewRecorder(func(tc *core.ToolContext, _ map[string]any) (any, error) {
		return tc.Invoke("recurse", nil)
	})
	require.NoError(t, reg.Register(testutil.NewDefinitionBuilder("recurse").CanInvoke("recurse").Build(), rec.Handler()))

	ic := testutil.NewContextBuilder().MaxDepth(3).Build()

	_, err := inv.Invoke(context.Background(), "recurse", nil, ic)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRecursionDepth)

	var rde *core.RecursionDepthError
	require.ErrorAs(t, err, &rde)
	assert.Equal(t, 3, rde.Depth)
	assert.Equal(t, 3, rde.MaxDepth)
	assert.Equal(t, "recurse", rde.ToolName)

	assert.Equal(t, []int{0, 1, 2}, rec.Depths())
	assert.Len(t, ic.ExecutionLog(), 4)
}

func TestInvoke_ChainTimeoutBeforeHandler(t *testing.T) {
	inv, reg := newInvoker(t)
	rec := testutil.NewRecorder(nil)
	require.NoError(t, reg.Register(tool.Definition{Name: "t"}, rec.Handler()))

	ic := testutil.NewContextBuilder().ChainTimeout(10 * time.Millisecond).StartedAgo(time.Second).Build()

	_, err := inv.Invoke(context.Background(), "t", nil, ic)
	assert.ErrorIs(t, err, core.ErrChainTimeout)
	assert.Equal(t, 0, rec.Calls())
}

func TestInvoke_Permissions(t *testing.T) {
	inv, reg := newInvoker(t)
	rec := testutil.NewRecorder(nil)

	require.NoError(t, reg.Register(tool.Definition{Name: "locked", CanInvoke: []string{}}, rec.Handler()))
	require.NoError(t, reg.Register(tool.Definition{Name: "allowed", CanInvoke: []string{"target"}}, rec.Handler()))
	require.NoError(t, reg.Register(tool.Definition{Name: "any", CanInvoke: []string{tool.Wildcard}}, rec.Handler()))
	require.NoError(t, reg.Register(tool.Definition{Name: "target"}, rec.Handler()))

	tests := []struct {
		parent  string
		allowed bool
	}{
		{"locked", false},
		{"allowed", true},
		{"any", true},
		{"unregistered", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run("parent="+tt.parent, func(t *testing.T) {
			ic := testutil.NewContextBuilder().Parent(tt.parent).Depth(1).Build()

			res, err := inv.Invoke(context.Background(), "target", nil, ic)
			if tt.allowed {
				require.NoError(t, err)
				assert.True(t, res.Success)
				return
			}

			assert.ErrorIs(t, err, core.ErrPermissionDenied)

			var tie *core.ToolInvocationError
			require.ErrorAs(t, err, &tie)
			assert.Equal(t, core.CodePermissionDenied, tie.Code)
			assert.Equal(t, "target", tie.Tool)
		})
	}
}

func TestInvoke_ValidationFailureIsResult(t *testing.T) {
	inv, reg := newInvoker(t)
	rec := testutil.NewRecorder(doubleHandler)
	require.NoError(t, reg.Register(testutil.NewDefinitionBuilder("double").NumberArg("value").Build(), rec.Handler()))

	ic := core.NewContext(nil)
	res, err := inv.Invoke(context.Background(), "double", map[string]any{"value": "five"}, ic)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid arguments for double")
	assert.Equal(t, 0, rec.Calls())
	assert.Equal(t, core.StatusError, ic.ExecutionLog()[0].Status)
}

func TestInvoke_Deduplicate(t *testing.T) {
	inv, reg := newInvoker(t)
	rec := testutil.NewRecorder(doubleHandler)
	require.NoError(t, reg.Register(tool.Definition{Name: "double"}, rec.Handler()))

	ic := core.NewContext(nil)
	ctx := context.Background()

	first, err := inv.Invoke(ctx, "double", map[string]any{"value": 2, "tag": "x"}, ic, invoker.WithDeduplicate())
	require.NoError(t, err)
	assert.False(t, first.Metadata.Cached)

	second, err := inv.Invoke(ctx, "double", map[string]any{"tag": "x", "value": 2}, ic, invoker.WithDeduplicate())
	require.NoError(t, err)
	assert.True(t, second.Metadata.Cached)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, 1, rec.Calls())

	// different args run again
	_, err = inv.Invoke(ctx, "double", map[string]any{"value": 3}, ic, invoker.WithDeduplicate())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Calls())

	// another chain does not share the cache
	_, err = inv.Invoke(ctx, "double", map[string]any{"value": 2, "tag": "x"}, core.NewContext(nil), invoker.WithDeduplicate())
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Calls())

	log := ic.ExecutionLog()
	require.Len(t, log, 3)
	assert.Equal(t, core.StatusCached, log[1].Status)
}

func TestInvoke_DeduplicateInFlight(t *testing.T) {
	inv, reg := newInvoker(t)

	release := make(chan struct{})
	rec := testutil.NewRecorder(func(*core.ToolContext, map[string]any) (any, error) {
		<-release
		return "done", nil
	})
	require.NoError(t, reg.Register(tool.Definition{Name: "slow"}, rec.Handler()))

	ic := core.NewContext(nil)

	var wg sync.WaitGroup
	results := make([]*core.Result, 5)

	for idx := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := inv.Invoke(context.Background(), "slow", map[string]any{"k": 1}, ic, invoker.WithDeduplicate())
			assert.NoError(t, err)
			results[idx] = res
		}(idx)
	}

	require.Eventually(t, func() bool { return rec.Calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, rec.Calls())

	cached := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "done", r.Data)
		if r.Metadata.Cached {
			cached++
		}
	}
	assert.Equal(t, 4, cached)
}

func TestInvoke_DeduplicateReentrantCallRuns(t *testing.T) {
	inv, reg := newInvoker(t)

	var calls atomic.Int32
	require.NoError(t, reg.Register(tool.Definition{Name: "rec", CanInvoke: []string{"rec"}}, func(tc *core.ToolContext, args map[string]any) (any, error) {
		if calls.Add(1) >= 3 {
			return "bottom", nil
		}

		res, err := tc.Invoke("rec", args, invoker.WithDeduplicate())
		if err != nil {
			return nil, err
		}
		return res.Data, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ic := core.NewContext(nil)
	start := time.Now()

	res, err := inv.Invoke(ctx, "rec", map[string]any{"n": 1}, ic, invoker.WithDeduplicate())
	require.NoError(t, err)
	assert.Equal(t, "bottom", res.Data)
	assert.Equal(t, int32(3), calls.Load())
	assert.Less(t, time.Since(start), time.Second)

	// the outer call cached its result once it finished
	again, err := inv.Invoke(ctx, "rec", map[string]any{"n": 1}, ic, invoker.WithDeduplicate())
	require.NoError(t, err)
	assert.True(t, again.Metadata.Cached)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvoke_DeduplicateReentrantStopsAtMaxDepth(t *testing.T) {
	inv, reg := newInvoker(t)
	require.NoError(t, reg.Register(tool.Definition{Name: "loop", CanInvoke: []string{"loop"}}, func(tc *core.ToolContext, args map[string]any) (any, error) {
		res, err := tc.Invoke("loop", args, invoker.WithDeduplicate())
		if err != nil {
			return nil, err
		}
		return res.Data, nil
	}))

	ic := core.NewContext(nil, func(o *core.ContextOptions) { o.MaxDepth = 3 })

	_, err := inv.Invoke(context.Background(), "loop", nil, ic, invoker.WithDeduplicate())
	assert.ErrorIs(t, err, core.ErrRecursionDepth)
}

func TestInvoke_DeduplicateDoesNotCacheFailures(t *testing.T) {
	inv, reg := newInvoker(t)

	var fail atomic.Bool
	fail.Store(true)

	rec := testutil.NewRecorder(func(*core.ToolContext, map[string]any) (any, error) {
		if fail.Load() {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	})
	require.NoError(t, reg.Register(tool.Definition{Name: "flaky"}, rec.Handler()))

	ic := core.NewContext(nil)

	_, err := inv.Invoke(context.Background(), "flaky", nil, ic, invoker.WithDeduplicate())
	require.Error(t, err)

	fail.Store(false)

	res, err := inv.Invoke(context.Background(), "flaky", nil, ic, invoker.WithDeduplicate())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Data)
	assert.False(t, res.Metadata.Cached)
	assert.Equal(t, 2, rec.Calls())
}

func TestInvoke_CallTimeoutCancelsHandlerContext(t *testing.T) {
	inv, reg := newInvoker(t)

	cancelled := make(chan struct{})
	require.NoError(t, reg.Register(tool.Definition{Name: "block"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		<-tc.Context().Done()
		close(cancelled)
		return nil, tc.Context().Err()
	}))

	ic := core.NewContext(nil)

	_, err := inv.Invoke(context.Background(), "block", nil, ic, invoker.WithTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrToolTimeout)

	var tte *core.ToolTimeoutError
	require.ErrorAs(t, err, &tte)
	assert.Equal(t, "block", tte.ToolName)
	assert.Equal(t, core.BoundCall, tte.Bound)
	assert.Equal(t, 20*time.Millisecond, tte.Timeout)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}

	assert.Equal(t, core.StatusError, ic.ExecutionLog()[0].Status)
}

func TestInvoke_ChainBudgetBoundsTimeout(t *testing.T) {
	inv, reg := newInvoker(t)
	require.NoError(t, reg.Register(tool.Definition{Name: "block"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		<-tc.Context().Done()
		return nil, nil
	}))

	ic := testutil.NewContextBuilder().ChainTimeout(30 * time.Millisecond).Timeout(time.Minute).Build()

	_, err := inv.Invoke(context.Background(), "block", nil, ic)

	var tte *core.ToolTimeoutError
	require.ErrorAs(t, err, &tte)
	assert.Equal(t, core.BoundChain, tte.Bound)
	assert.LessOrEqual(t, tte.Timeout, 30*time.Millisecond)
}

func TestInvoke_ContextTimeoutFromInvocationContext(t *testing.T) {
	inv, reg := newInvoker(t)
	require.NoError(t, reg.Register(tool.Definition{Name: "block"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		<-tc.Context().Done()
		return nil, nil
	}))

	ic := testutil.NewContextBuilder().Timeout(15 * time.Millisecond).Build()

	_, err := inv.Invoke(context.Background(), "block", nil, ic)
	assert.ErrorIs(t, err, core.ErrToolTimeout)
}

func TestInvoke_HandlerErrorWithoutRecovery(t *testing.T) {
	inv, reg := newInvoker(t)
	boom := errors.New("boom")
	require.NoError(t, reg.Register(tool.Definition{Name: "fail"}, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, boom
	}))

	_, err := inv.Invoke(context.Background(), "fail", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var tie *core.ToolInvocationError
	require.ErrorAs(t, err, &tie)
	assert.Equal(t, core.CodeExecution, tie.Code)
	assert.Equal(t, "fail", tie.Tool)
	assert.Equal(t, "boom", tie.Message)
}

func TestInvoke_Recovery(t *testing.T) {
	inv, reg := newInvoker(t)
	require.NoError(t, reg.Register(tool.Definition{Name: "fail"}, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}))

	var seen error
	res, err := inv.Invoke(context.Background(), "fail", nil, nil, invoker.WithOnError(func(_ context.Context, err error) (*core.Result, error) {
		seen = err
		return core.Success("fallback"), nil
	}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "fallback", res.Data)
	assert.EqualError(t, seen, "boom")

	// nil recovery result becomes a failed result
	res, err = inv.Invoke(context.Background(), "fail", nil, nil, invoker.WithOnError(func(context.Context, error) (*core.Result, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)

	// failing recovery fails the invocation with the recovery error
	recoveryErr := errors.New("recovery broke")
	_, err = inv.Invoke(context.Background(), "fail", nil, nil, invoker.WithOnError(func(context.Context, error) (*core.Result, error) {
		return nil, recoveryErr
	}))
	assert.ErrorIs(t, err, recoveryErr)

	var tie *core.ToolInvocationError
	require.ErrorAs(t, err, &tie)
	assert.Equal(t, core.CodeRecovery, tie.Code)
}

func TestInvoke_PanicsAreNormalized(t *testing.T) {
	inv, reg := newInvoker(t)

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "kaboom", "kaboom"},
		{"int", 42, "42"},
		{"error", errors.New("wrapped"), "wrapped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value := tt.value
			require.NoError(t, reg.Register(tool.Definition{Name: "panic_" + tt.name}, func(*core.ToolContext, map[string]any) (any, error) {
				panic(value)
			}))

			_, err := inv.Invoke(context.Background(), "panic_"+tt.name, nil, nil)

			var tie *core.ToolInvocationError
			require.ErrorAs(t, err, &tie)
			assert.Equal(t, tt.want, tie.Message)
			assert.Equal(t, core.CodeExecution, tie.Code)

			var pe *core.PanicError
			assert.ErrorAs(t, err, &pe)
		})
	}

	// a recovered panic feeds onError like any handler failure
	res, err := inv.Invoke(context.Background(), "panic_string", nil, nil, invoker.WithOnError(func(_ context.Context, err error) (*core.Result, error) {
		return core.Failure(core.ErrorMessage(err)), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "panic: kaboom", res.Error)
}

func TestInvoke_CancelledContext(t *testing.T) {
	inv, reg := newInvoker(t)

	unblock := make(chan struct{})
	t.Cleanup(func() { close(unblock) })

	require.NoError(t, reg.Register(tool.Definition{Name: "block"}, func(*core.ToolContext, map[string]any) (any, error) {
		<-unblock
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := inv.Invoke(ctx, "block", nil, nil)

	var tie *core.ToolInvocationError
	require.ErrorAs(t, err, &tie)
	assert.Equal(t, core.CodeCancelled, tie.Code)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvoke_NestedCallsShareChain(t *testing.T) {
	inv, reg := newInvoker(t)

	require.NoError(t, reg.Register(testutil.NewDefinitionBuilder("double").NumberArg("value").Build(), doubleHandler))
	require.NoError(t, reg.Register(testutil.NewDefinitionBuilder("quadruple").NumberArg("value").CanInvoke("double").Build(),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			tc.SetState("seen", true)

			res, err := tc.Invoke("double", args)
			if err != nil {
				return nil, err
			}

			return tc.Invoke("double", map[string]any{"value": res.Data})
		}))

	ic := core.NewContext(nil)
	res, err := inv.Invoke(context.Background(), "quadruple", map[string]any{"value": 3}, ic)
	require.NoError(t, err)

	inner, ok := res.Data.(*core.Result)
	require.True(t, ok)
	assert.Equal(t, 12.0, inner.Data)
	assert.Equal(t, 1, inner.Metadata.Depth)

	seen, _ := ic.State().Get("seen")
	assert.Equal(t, true, seen)

	log := ic.ExecutionLog()
	require.Len(t, log, 3)
	assert.Equal(t, "double", log[0].ToolName)
	assert.Equal(t, 1, log[0].Depth)
	assert.Equal(t, "quadruple", log[2].ToolName)
	assert.Equal(t, 0, log[2].Depth)
}

type fakeTracer struct {
	mu       sync.Mutex
	started  []string
	ended    map[string]bool
	rejected []string
}

func (f *fakeTracer) StartToolSpan(ic *core.InvocationContext, toolName, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := toolName + "#" + ic.ParentSpanID
	f.started = append(f.started, id)
	return id
}

func (f *fakeTracer) EndToolSpan(spanID string, success bool, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended == nil {
		f.ended = map[string]bool{}
	}
	f.ended[spanID] = success
}

func (f *fakeTracer) ActiveSpan(string) (string, bool) { return "", false }

func (f *fakeTracer) RecordToolError(_ *core.InvocationContext, toolName, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, toolName)
}

func TestInvoke_TracerLifecycle(t *testing.T) {
	tr := &fakeTracer{}
	inv, reg := newInvoker(t, func(o *invoker.Options) { o.Tracer = tr })

	require.NoError(t, reg.Register(tool.Definition{Name: "leaf"}, testutil.NewRecorder(nil).Handler()))
	require.NoError(t, reg.Register(tool.Definition{Name: "root", CanInvoke: []string{"leaf"}}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		return tc.Invoke("leaf", nil)
	}))

	_, err := inv.Invoke(context.Background(), "root", nil, nil)
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "nope", nil, nil)
	require.Error(t, err)

	assert.Equal(t, []string{"root#", "leaf#root#"}, tr.started)
	assert.True(t, tr.ended["root#"])
	assert.True(t, tr.ended["leaf#root#"])
	assert.Equal(t, []string{"nope"}, tr.rejected)
}

func TestInvoke_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inv, reg := newInvoker(t, func(o *invoker.Options) { o.MeterProvider = mp })
	require.NoError(t, reg.Register(tool.Definition{Name: "double"}, doubleHandler))

	_, err := inv.Invoke(context.Background(), "double", map[string]any{"value": 1}, nil)
	require.NoError(t, err)
	_, err = inv.Invoke(context.Background(), "missing", nil, nil)
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	var histCount uint64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					totals[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histCount += dp.Count
				}
			}
		}
	}

	assert.Equal(t, int64(2), totals["toolmesh.invocations"])
	assert.Equal(t, int64(1), totals["toolmesh.invocation.errors"])
	assert.Equal(t, uint64(2), histCount)
}
