package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Error codes carried by ToolInvocationError.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeExecution        = "EXECUTION_ERROR"
	CodeRecovery         = "RECOVERY_ERROR"
	CodeCancelled        = "CANCELLED"
	CodeValidation       = "VALIDATION_ERROR"
)

// UnknownErrorMessage is used when a failure carries no usable description.
const UnknownErrorMessage = "Unknown error"

var (
	// ErrToolNotFound matches *ToolNotFoundError.
	ErrToolNotFound = errors.New("tool not found")
	// ErrRecursionDepth matches *RecursionDepthError.
	ErrRecursionDepth = errors.New("recursion depth exceeded")
	// ErrChainTimeout matches *ChainTimeoutError.
	ErrChainTimeout = errors.New("chain timeout exceeded")
	// ErrToolTimeout matches *ToolTimeoutError.
	ErrToolTimeout = errors.New("tool timeout exceeded")
	// ErrPermissionDenied matches a *ToolInvocationError with CodePermissionDenied.
	ErrPermissionDenied = errors.New("permission denied")
)

// ToolNotFoundError is returned when the requested tool is not registered.
type ToolNotFoundError struct {
	ToolName string `json:"tool_name"`
}

func (e *ToolNotFoundError) Error() string { return fmt.Sprintf("tool not found: %s", e.ToolName) }

// Is reports whether target is ErrToolNotFound.
func (e *ToolNotFoundError) Is(target error) bool { return target == ErrToolNotFound }

// RecursionDepthError signals that a chain nested deeper than its MaxDepth.
// It usually indicates a design flaw in the calling tools rather than a
// transient condition.
type RecursionDepthError struct {
	ToolName string `json:"tool_name"`
	Depth    int    `json:"depth"`
	MaxDepth int    `json:"max_depth"`
}

func (e *RecursionDepthError) Error() string {
	return fmt.Sprintf("recursion depth exceeded invoking %s: depth %d, max depth %d", e.ToolName, e.Depth, e.MaxDepth)
}

// Is reports whether target is ErrRecursionDepth.
func (e *RecursionDepthError) Is(target error) bool { return target == ErrRecursionDepth }

// ChainTimeoutError is returned when a call is attempted after the chain budget
// has been spent. The handler is never started in that case.
type ChainTimeoutError struct {
	ToolName string        `json:"tool_name"`
	Elapsed  time.Duration `json:"elapsed"`
	Budget   time.Duration `json:"budget"`
}

func (e *ChainTimeoutError) Error() string {
	return fmt.Sprintf("chain timeout exceeded before invoking %s: elapsed %dms, budget %dms",
		e.ToolName, e.Elapsed.Milliseconds(), e.Budget.Milliseconds())
}

// Is reports whether target is ErrChainTimeout.
func (e *ChainTimeoutError) Is(target error) bool { return target == ErrChainTimeout }

// Timeout bounds reported by ToolTimeoutError.
const (
	BoundCall  = "call"
	BoundChain = "chain"
)

// ToolTimeoutError is returned when a handler did not complete within the
// tighter of the per-call timeout and the remaining chain budget.
//
// The timeout only bounds the caller's wait. The handler's context is
// cancelled, but a handler that ignores cancellation keeps running and its
// side effects may still complete.
type ToolTimeoutError struct {
	ToolName string        `json:"tool_name"`
	Timeout  time.Duration `json:"timeout"`
	Bound    string        `json:"bound"`
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %dms (%s bound)", e.ToolName, e.Timeout.Milliseconds(), e.Bound)
}

// Is reports whether target is ErrToolTimeout.
func (e *ToolTimeoutError) Is(target error) bool { return target == ErrToolTimeout }

// ToolInvocationError represents generic failures while invoking a tool:
// permission violations, handler errors, recovery failures and cancellation.
type ToolInvocationError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Err     error  `json:"-"`
}

func (e *ToolInvocationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ToolInvocationError) Unwrap() error { return e.Err }

// Is maps permission failures onto ErrPermissionDenied.
func (e *ToolInvocationError) Is(target error) bool {
	return target == ErrPermissionDenied && e.Code == CodePermissionDenied
}

// NewToolInvocationError creates a new ToolInvocationError wrapping cause.
func NewToolInvocationError(tool, code string, cause error) *ToolInvocationError {
	return &ToolInvocationError{
		Tool:    tool,
		Message: ErrorMessage(cause),
		Code:    code,
		Err:     cause,
	}
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the recovered value together with the current stack.
func NewPanicError(r any) *PanicError { return &PanicError{Value: r, Stack: debug.Stack()} }

func (p *PanicError) Error() string { return "panic: " + ErrorMessage(p.Value) }

// Unwrap exposes the panic value when it is itself an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// ErrorMessage normalizes any failure value into a human readable message.
// Errors, strings and fmt.Stringers are used verbatim; other values are
// rendered as JSON when possible. Empty values yield UnknownErrorMessage.
func ErrorMessage(v any) string {
	var msg string

	switch t := v.(type) {
	case nil:
		return UnknownErrorMessage
	case error:
		msg = t.Error()
	case string:
		msg = t
	case fmt.Stringer:
		msg = t.String()
	default:
		if b, err := json.Marshal(t); err == nil && string(b) != "null" && string(b) != "{}" {
			msg = string(b)
		} else {
			msg = fmt.Sprintf("%v", t)
		}
	}

	if msg == "" {
		return UnknownErrorMessage
	}

	return msg
}
