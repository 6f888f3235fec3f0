package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext_Root(t *testing.T) {
	ic := NewContext(nil)

	assert.NotEmpty(t, ic.CorrelationID)
	assert.Equal(t, 0, ic.Depth)
	assert.Equal(t, DefaultMaxDepth, ic.MaxDepth)
	assert.True(t, ic.IsRoot())
	assert.False(t, ic.ChainStart.IsZero())
	assert.Empty(t, ic.ExecutionLog())

	_, bounded := ic.RemainingBudget()
	assert.False(t, bounded)
	assert.False(t, ic.ChainExpired())
}

func TestNewContext_Overrides(t *testing.T) {
	state := NewSharedState()
	state.Set("k", "v")

	ic := NewContext(nil, func(o *ContextOptions) {
		o.CorrelationID = "corr-1"
		o.MaxDepth = 3
		o.Timeout = time.Second
		o.ChainTimeout = time.Minute
		o.State = state
	})

	assert.Equal(t, "corr-1", ic.CorrelationID)
	assert.Equal(t, 3, ic.MaxDepth)
	assert.Equal(t, time.Second, ic.Timeout)
	assert.Equal(t, time.Minute, ic.ChainTimeout)

	v, ok := ic.State().Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestNewContext_WithParentKeepsChain(t *testing.T) {
	parent := NewContext(nil, func(o *ContextOptions) { o.MaxDepth = 4 })
	parent = parent.Child("caller")
	parent.State().Set("shared", 1)

	ic := NewContext(parent, func(o *ContextOptions) { o.Timeout = 50 * time.Millisecond })

	assert.Equal(t, parent.CorrelationID, ic.CorrelationID)
	assert.Equal(t, parent.Depth, ic.Depth)
	assert.Equal(t, 4, ic.MaxDepth)
	assert.Equal(t, 50*time.Millisecond, ic.Timeout)
	assert.Equal(t, parent.ChainStart, ic.ChainStart)

	ic.State().Set("shared", 2)
	v, _ := parent.State().Get("shared")
	assert.Equal(t, 2, v)

	ic.AppendLog(ExecutionLogEntry{ToolName: "t", Status: StatusSuccess})
	assert.Len(t, parent.ExecutionLog(), 1)
}

func TestChild(t *testing.T) {
	root := NewContext(nil)
	root.ParentSpanID = "span-x"
	root.DetachedSpan = true

	child := root.Child("parent_tool")

	assert.Equal(t, root.CorrelationID, child.CorrelationID)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, "parent_tool", child.ParentToolName)
	assert.Empty(t, child.ParentSpanID)
	assert.False(t, child.DetachedSpan)
	assert.False(t, child.IsRoot())
	assert.Same(t, root.State(), child.State())
	assert.Same(t, root.Dedup(), child.Dedup())

	grandchild := child.Child("child_tool")
	assert.Equal(t, 2, grandchild.Depth)
	assert.Equal(t, 0, root.Depth)
}

func TestExecutionLog_SnapshotAndTimestamp(t *testing.T) {
	ic := NewContext(nil)
	ic.AppendLog(ExecutionLogEntry{ToolName: "a"})

	log := ic.ExecutionLog()
	require.Len(t, log, 1)
	assert.False(t, log[0].Timestamp.IsZero())

	log[0].ToolName = "mutated"
	assert.Equal(t, "a", ic.ExecutionLog()[0].ToolName)
}

func TestChainBudget(t *testing.T) {
	ic := NewContext(nil, func(o *ContextOptions) { o.ChainTimeout = 10 * time.Millisecond })
	ic.ChainStart = time.Now().Add(-time.Second)

	remaining, bounded := ic.RemainingBudget()
	assert.True(t, bounded)
	assert.Less(t, remaining, time.Duration(0))
	assert.True(t, ic.ChainExpired())
}

func TestZeroValueContext(t *testing.T) {
	ic := &InvocationContext{CorrelationID: "lit"}

	ic.State().Set("a", 1)
	ic.AppendLog(ExecutionLogEntry{ToolName: "x"})

	assert.Len(t, ic.ExecutionLog(), 1)
	assert.NotNil(t, ic.Dedup())
}

func TestSharedState_Concurrent(t *testing.T) {
	s := NewSharedState()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set("k", i)
			_, _ = s.Get("k")
		}(i)
	}
	wg.Wait()

	_, ok := s.Get("k")
	assert.True(t, ok)

	s.Delete("k")
	_, ok = s.Get("k")
	assert.False(t, ok)

	s.Set("x", 1)
	snap := s.Snapshot()
	snap["x"] = 2
	v, _ := s.Get("x")
	assert.Equal(t, 1, v)
}
