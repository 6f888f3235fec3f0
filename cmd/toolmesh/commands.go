package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hupe1980/toolmesh/invoker"
	"github.com/hupe1980/toolmesh/orchestrator"
)

// InvokeCmd invokes a single tool.
type InvokeCmd struct {
	Tool    string        `short:"t" long:"tool" required:"true" description:"tool name"`
	Input   string        `short:"i" long:"input" default:"{}" description:"JSON arguments, or @file"`
	Dedup   bool          `long:"dedup" description:"deduplicate identical calls within the chain"`
	Timeout time.Duration `long:"timeout" description:"per-call timeout"`
	Trace   string        `long:"trace" choice:"json" choice:"otlp" description:"also print the trace in this format"`

	app *app
}

// Execute implements flags.Commander.
func (c *InvokeCmd) Execute(_ []string) error {
	args, err := parseInput(c.Input)
	if err != nil {
		return err
	}

	m, err := c.app.newMesh()
	if err != nil {
		return err
	}

	var opts []invoker.CallOption
	if c.Dedup {
		opts = append(opts, invoker.WithDeduplicate())
	}
	if c.Timeout > 0 {
		opts = append(opts, invoker.WithTimeout(c.Timeout))
	}

	ic := m.NewContext()

	res, err := m.Invoke(context.Background(), c.Tool, args, ic, opts...)
	if err != nil {
		return err
	}

	if err := c.app.writeJSON(res); err != nil {
		return err
	}

	if c.Trace != "" {
		return c.app.printTrace(m, ic.CorrelationID, c.Trace)
	}

	return nil
}

// RunCmd executes a workflow file.
type RunCmd struct {
	Workflow   string `short:"w" long:"workflow" required:"true" description:"workflow YAML file"`
	Input      string `short:"i" long:"input" default:"{}" description:"JSON input of the first step, or @file"`
	Trace      string `long:"trace" default:"json" choice:"json" choice:"otlp" description:"trace export format"`
	NoDiagrams bool   `long:"no-diagrams" description:"skip the Mermaid diagrams"`

	app *app
}

// Execute implements flags.Commander.
func (c *RunCmd) Execute(_ []string) error {
	wf, err := orchestrator.LoadWorkflow(c.Workflow)
	if err != nil {
		return err
	}

	initial, err := parseInput(c.Input)
	if err != nil {
		return err
	}

	m, err := c.app.newMesh()
	if err != nil {
		return err
	}

	res, runErr := m.RunWorkflow(context.Background(), wf, initial)
	if res == nil {
		return runErr
	}

	if err := c.app.writeJSON(res); err != nil {
		return err
	}

	if !c.NoDiagrams {
		c.app.printDiagrams(m, "both")
	}

	if err := c.app.printTrace(m, res.CorrelationID, c.Trace); err != nil {
		return err
	}

	return runErr
}

// GraphCmd runs the built-in pipeline and prints its handoff diagrams.
type GraphCmd struct {
	Value  float64 `long:"value" default:"1" description:"input value of the pipeline"`
	Format string  `long:"format" default:"both" choice:"flow" choice:"sequence" choice:"both" description:"diagram to print"`

	app *app
}

// Execute implements flags.Commander.
func (c *GraphCmd) Execute(_ []string) error {
	m, err := c.app.newMesh()
	if err != nil {
		return err
	}

	if _, err := m.RunWorkflow(context.Background(), demoWorkflow(), map[string]any{"value": c.Value}); err != nil {
		return err
	}

	c.app.printDiagrams(m, c.Format)

	return nil
}

// ToolsCmd lists tools and agents.
type ToolsCmd struct {
	app *app
}

// Execute implements flags.Commander.
func (c *ToolsCmd) Execute(_ []string) error {
	m, err := c.app.newMesh()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.app.out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "TOOL\tCAN INVOKE\tDESCRIPTION")

	for _, def := range m.Registry().List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, orDash(strings.Join(def.CanInvoke, ",")), def.Description)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "AGENT\tTOOL")

	orc := m.Orchestrator()
	for _, agent := range orc.Agents() {
		toolName, _ := orc.LookupAgent(agent)
		fmt.Fprintf(w, "%s\t%s\n", agent, toolName)
	}

	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
