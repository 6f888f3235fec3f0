package toolmesh_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/config"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/testutil"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/tracing"
)

func double(_ *core.ToolContext, args map[string]any) (any, error) {
	v, _ := util.ToFloat(args["value"])
	return v * 2, nil
}

func quadruple(tc *core.ToolContext, args map[string]any) (*core.Result, error) {
	res, err := tc.Invoke("double", args)
	if err != nil {
		return nil, err
	}

	return tc.Invoke("double", map[string]any{"value": res.Data})
}

func registerTools(t *testing.T, m *toolmesh.Mesh) {
	t.Helper()

	require.NoError(t, m.Register(testutil.NewDefinitionBuilder("double").NumberArg("value").Build(), double))
	require.NoError(t, m.Register(
		testutil.NewDefinitionBuilder("quadruple").NumberArg("value").CanInvoke("double").Build(),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			res, err := quadruple(tc, args)
			if err != nil {
				return nil, err
			}
			return res.Data, nil
		},
	))
}

func TestMesh_InvokeNestedIsTraced(t *testing.T) {
	m := toolmesh.New()
	registerTools(t, m)

	ic := m.NewContext()
	res, err := m.Invoke(context.Background(), "quadruple", map[string]any{"value": 3}, ic)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 12.0, res.Data)

	spans := m.Trace(ic.CorrelationID)
	require.Len(t, spans, 3)

	var root tracing.Span
	for _, s := range spans {
		if s.ToolName == "quadruple" {
			root = s
		}
	}

	for _, s := range spans {
		if s.ToolName == "double" {
			assert.Equal(t, root.SpanID, s.ParentSpanID)
			assert.Equal(t, 1, s.Depth)
		}
	}

	tl := m.Timeline(ic.CorrelationID)
	assert.Len(t, tl.Spans, 3)
	assert.NotEmpty(t, tl.CriticalPath)
	assert.Equal(t, "quadruple", tl.CriticalPath[0].ToolName)

	doc, err := m.ExportTrace(ic.CorrelationID, tracing.FormatJSON)
	require.NoError(t, err)
	assert.Len(t, doc.(tracing.JSONTrace).Spans, 3)

	assert.Len(t, ic.ExecutionLog(), 3)
}

func TestMesh_InvokeWithoutContext(t *testing.T) {
	m := toolmesh.New()
	registerTools(t, m)

	res, err := m.Invoke(context.Background(), "double", map[string]any{"value": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Data)
	assert.Equal(t, 1, m.Tracer().Summary().TotalChains)
}

func TestMesh_InvokeBatch(t *testing.T) {
	m := toolmesh.New()
	registerTools(t, m)

	results := m.InvokeBatch(context.Background(), []invoker.Call{
		{Tool: "double", Args: map[string]any{"value": 1}},
		{Tool: "missing"},
		{Tool: "double", Args: map[string]any{"value": 2}},
	}, nil)

	require.Len(t, results, 3)
	assert.Equal(t, 2.0, results[0].Result.Data)
	assert.True(t, results[1].Failed())
	assert.ErrorIs(t, results[1].Err, core.ErrToolNotFound)
	assert.Equal(t, 4.0, results[2].Result.Data)
}

func TestMesh_HandoffAndWorkflow(t *testing.T) {
	m := toolmesh.New(func(o *toolmesh.Options) {
		o.Agents = map[string]string{"doubler": "double"}
	})
	registerTools(t, m)
	m.RegisterAgent("quad", "quadruple")

	hr, err := m.Handoff(context.Background(), orchestrator.HandoffRequest{
		TargetAgent: "doubler",
		Context:     map[string]any{"value": 5},
	})
	require.NoError(t, err)
	assert.True(t, hr.Success)
	assert.Equal(t, 10.0, hr.Data)

	wf := orchestrator.Workflow{
		Name: "pipeline",
		Steps: []orchestrator.Step{
			{Agent: "doubler"},
			{Agent: "quad", InputMapping: map[string]string{"value": "doubler"}},
		},
	}

	wr, err := m.RunWorkflow(context.Background(), wf, map[string]any{"value": 1})
	require.NoError(t, err)
	assert.True(t, wr.Success)
	assert.Equal(t, 8.0, wr.Outputs["quad"])

	assert.Len(t, m.Graph().Records(), 3)
	assert.Len(t, m.Trace(wr.CorrelationID), 4)

	flow := m.Mermaid()
	assert.True(t, strings.HasPrefix(flow, "graph LR"))
	assert.Contains(t, flow, "doubler -->|")

	seq := m.SequenceDiagram()
	assert.Contains(t, seq, "user->>doubler: handoff")
	assert.Contains(t, seq, "doubler->>quad: handoff")

	m.Reset()
	assert.Equal(t, 0, m.Graph().Len())
	assert.Equal(t, 0, m.Tracer().Summary().TotalSpans)
	assert.Len(t, m.Registry().List(), 2)
}

func TestMesh_HandoffUnknownAgent(t *testing.T) {
	m := toolmesh.New()

	hr, err := m.Handoff(context.Background(), orchestrator.HandoffRequest{SourceAgent: "a", TargetAgent: "ghost"})
	require.ErrorIs(t, err, orchestrator.ErrAgentNotFound)
	assert.False(t, hr.Success)
	assert.Contains(t, m.Mermaid(), ":::error")
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Invocation.MaxDepth = 1
	cfg.Agents = map[string]string{"quad": "quadruple"}
	cfg.Tracing.ServiceName = "mesh-test"

	m, err := toolmesh.NewFromConfig(cfg, func(o *toolmesh.Options) {
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	registerTools(t, m)

	ic := m.NewContext()
	assert.Equal(t, 1, ic.MaxDepth)

	_, err = m.Invoke(context.Background(), "quadruple", map[string]any{"value": 1}, ic)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRecursionDepth)

	hr, err := m.Handoff(context.Background(), orchestrator.HandoffRequest{TargetAgent: "quad", Context: map[string]any{"value": 1}})
	require.Error(t, err)
	assert.False(t, hr.Success)

	doc, err := m.ExportTrace(ic.CorrelationID, tracing.FormatOTLP)
	require.NoError(t, err)
	otlp := doc.(tracing.OTLPTrace)
	require.Len(t, otlp.ResourceSpans, 1)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.Tracing.MaxSpans = 0

	_, err := toolmesh.NewFromConfig(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
