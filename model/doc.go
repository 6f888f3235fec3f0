// Package model defines the provider-agnostic abstractions for language
// models used by toolmesh and exposes a model as a regular tool.
//
// A Model turns a Request (instruction, messages, tool definitions) into a
// Response. NewTool wraps a Model into a tool.FunctionTool: the tool renders
// its prompt from the invocation arguments, lets the model call the tools it
// was granted through the invoker, and returns the final text.
//
// Providers (see the openai and anthropic subpackages) implement Model so the
// invocation layer stays decoupled from vendor SDKs. MockModel serves tests
// and offline demos.
package model
