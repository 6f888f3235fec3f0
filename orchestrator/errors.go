package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentNotFound matches *AgentNotFoundError.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNoExecutor is returned when a handoff is attempted without an Executor.
	ErrNoExecutor = errors.New("no executor configured")
	// ErrInvalidWorkflow reports malformed workflow definitions.
	ErrInvalidWorkflow = errors.New("invalid workflow")
)

// AgentNotFoundError is returned for handoffs to agents missing from the
// directory.
type AgentNotFoundError struct {
	Agent string
}

func (e *AgentNotFoundError) Error() string { return "agent not found: " + e.Agent }

func (e *AgentNotFoundError) Is(target error) bool { return target == ErrAgentNotFound }

// StepError reports the workflow step that halted execution.
type StepError struct {
	Index int
	Step  string
	Agent string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow step %d (%s) failed: %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
