package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/toolmesh/internal/util"
	"github.com/hupe1980/toolmesh/logging"
)

// InitialOutputKey holds the workflow input in WorkflowResult.Outputs.
const InitialOutputKey = "_initial"

// Workflow is an ordered list of agent steps.
type Workflow struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step hands off to Agent. Without InputMapping the step receives the
// previous step's output (the workflow input for the first step).
type Step struct {
	Agent string `json:"agent" yaml:"agent"`
	// Name keys the step's output. Defaults to Agent.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// InputMapping builds the step input from earlier outputs. Values are
	// paths of the form "<step>.<field>.<field>"; use "_initial" for the
	// workflow input. Missing paths map to nil.
	InputMapping map[string]string `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`
}

// Key returns the name the step's output is stored under.
func (s Step) Key() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Agent
}

// Validate checks that every step names an agent and output keys are unique.
func (w Workflow) Validate() error {
	seen := map[string]bool{InitialOutputKey: true}

	for i, s := range w.Steps {
		if s.Agent == "" {
			return fmt.Errorf("%w: step %d has no agent", ErrInvalidWorkflow, i)
		}
		if seen[s.Key()] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidWorkflow, s.Key())
		}
		seen[s.Key()] = true
	}

	return nil
}

// StepResult is the outcome of one executed step.
type StepResult struct {
	Name          string        `json:"name"`
	Agent         string        `json:"agent"`
	Success       bool          `json:"success"`
	Output        any           `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// WorkflowResult collects the outputs of a workflow run.
type WorkflowResult struct {
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlation_id"`
	// Outputs maps step keys to outputs and always holds InitialOutputKey.
	Outputs map[string]any `json:"outputs"`
	// Steps lists executed steps, including the failing one.
	Steps      []StepResult  `json:"steps"`
	FailedStep string        `json:"failed_step,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ExecuteWorkflow runs the steps in order as handoffs within one chain.
//
// Execution halts at the first failing step; its StepResult is included and
// the outputs of earlier steps are preserved. The returned error is a
// *StepError in that case. An empty workflow succeeds with only the
// initial input in Outputs.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wf Workflow, initial map[string]any) (*WorkflowResult, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ic := o.newContext()

	res := &WorkflowResult{
		Success:       true,
		CorrelationID: ic.CorrelationID,
		Outputs:       map[string]any{InitialOutputKey: initial},
		Steps:         []StepResult{},
	}

	var (
		prev    any = initial
		stepErr *StepError
	)

	for i, step := range wf.Steps {
		source := ""
		if i > 0 {
			source = wf.Steps[i-1].Agent
		}

		stepStart := time.Now()
		out, err := o.ExecuteHandoff(ctx, HandoffRequest{
			SourceAgent: source,
			TargetAgent: step.Agent,
			Context:     stepInput(step, prev, res.Outputs),
			Invocation:  ic,
		})

		sr := StepResult{
			Name:          step.Key(),
			Agent:         step.Agent,
			Success:       out.Success,
			Output:        out.Data,
			Error:         out.Error,
			ExecutionTime: time.Since(stepStart),
		}
		res.Steps = append(res.Steps, sr)

		if !out.Success {
			if err == nil {
				err = errors.New(out.Error)
			}

			stepErr = &StepError{Index: i, Step: step.Key(), Agent: step.Agent, Err: err}
			res.Success = false
			res.FailedStep = step.Key()
			res.Error = out.Error

			o.logger.Warn("orchestrator.workflow.step_failed",
				"workflow", wf.Name,
				"step", step.Key(),
				"step.index", i,
				"agent", step.Agent,
				"error", out.Error,
			)

			break
		}

		res.Outputs[step.Key()] = out.Data
		prev = out.Data
	}

	res.Duration = time.Since(start)

	o.logWorkflow(wf, res, stepErr)

	if stepErr != nil {
		return res, stepErr
	}

	return res, nil
}

// stepInput derives the arguments of a step. Outputs that are not objects are
// passed as {"input": output}.
func stepInput(step Step, prev any, outputs map[string]any) map[string]any {
	if len(step.InputMapping) > 0 {
		return ResolveMapping(step.InputMapping, outputs)
	}

	switch v := prev.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		return map[string]any{"input": v}
	}
}

// ResolveMapping builds an argument map from path expressions over outputs.
// The first path segment selects the output, the rest is resolved inside it.
func ResolveMapping(mapping map[string]string, outputs map[string]any) map[string]any {
	args := make(map[string]any, len(mapping))

	for field, path := range mapping {
		head, rest := util.SplitPath(path)

		src, ok := outputs[head]
		if !ok {
			args[field] = nil
			continue
		}

		v, _ := util.LookupPath(src, rest)
		args[field] = v
	}

	return args
}

func (o *Orchestrator) logWorkflow(wf Workflow, res *WorkflowResult, stepErr *StepError) {
	var err error
	if stepErr != nil {
		err = stepErr
	}

	if wl, ok := o.logger.(logging.WorkflowLogger); ok {
		wl.LogWorkflowExecution(wf.Name, len(res.Steps), res.Duration, res.Success, err)
		return
	}

	o.logger.Info("orchestrator.workflow.complete",
		"workflow", wf.Name,
		"steps", len(res.Steps),
		"success", res.Success,
		"duration_ms", res.Duration.Milliseconds(),
	)
}
