// Package logging provides a minimal logging interface and adapters for ToolMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the invoker, tracer and orchestrator use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ToolMeshLogger with tool call, handoff and workflow helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh := toolmesh.New(func(o *toolmesh.Options) { o.Logger = logger })
//
// Components detect the optional ToolCallLogger, HandoffLogger and
// WorkflowLogger interfaces and emit dedicated records when present.
package logging
