package main

import (
	"github.com/hupe1980/toolmesh"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/model"
	"github.com/hupe1980/toolmesh/orchestrator"
	"github.com/hupe1980/toolmesh/tool"
)

var numberSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"value": map[string]any{"type": "number"},
	},
	"required": []any{"value"},
}

// demoAgents are registered unless the config maps the name already.
var demoAgents = map[string]string{
	"doubler":  "double",
	"quad":     "quadruple",
	"reporter": "report",
}

func registerDemo(m *toolmesh.Mesh) error {
	double := tool.NewFunctionTool("double", "Double a number", numberSchema,
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			v, _ := util.ToFloat(args["value"])
			return v * 2, nil
		})

	add := tool.NewFunctionTool("add", "Add two numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a", "b"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a, _ := util.ToFloat(args["a"])
		b, _ := util.ToFloat(args["b"])
		return a + b, nil
	})

	quadruple := tool.NewFunctionTool("quadruple", "Double a number twice via nested calls", numberSchema,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			res, err := tc.Invoke("double", args)
			if err != nil {
				return nil, err
			}

			res, err = tc.Invoke("double", map[string]any{"value": res.Data})
			if err != nil {
				return nil, err
			}

			return res.Data, nil
		}, func(o *tool.FunctionToolOptions) {
			o.CanInvoke = []string{"double"}
		})

	reporter := model.NewMockModel("demo-reporter", "mock")

	report := model.NewTool("report", "Write a short report about a value", reporter, func(o *model.ToolOptions) {
		o.Prompt = "Report: {{ .value }}"
		o.System = "You write one-line reports."
		o.Parameters = numberSchema
	})

	for _, t := range []tool.Tool{double, add, quadruple, report, tool.NewStateManagerTool(), tool.NewCallTool("double", "add", "quadruple")} {
		if err := m.RegisterTool(t); err != nil {
			return err
		}
	}

	for agent, toolName := range demoAgents {
		if _, ok := m.Orchestrator().LookupAgent(agent); !ok {
			m.RegisterAgent(agent, toolName)
		}
	}

	return nil
}

// demoWorkflow doubles, quadruples and reports on a value.
func demoWorkflow() orchestrator.Workflow {
	return orchestrator.Workflow{
		Name: "demo",
		Steps: []orchestrator.Step{
			{Agent: "doubler"},
			{Agent: "quad", InputMapping: map[string]string{"value": "doubler"}},
			{Agent: "reporter", InputMapping: map[string]string{"value": "quad"}},
		},
	}
}
