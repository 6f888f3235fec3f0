// Package core provides the foundational domain types shared by every ToolMesh
// component. It defines:
//
//   - InvocationContext (per-chain identity, depth, deadlines, shared state and
//     the append-only execution log)
//   - ToolContext (the surface a tool handler sees, including nested invocation)
//   - Result (the uniform success / failure outcome of a tool call)
//   - The error taxonomy (ToolNotFound, RecursionDepth, ChainTimeout, ToolTimeout,
//     ToolInvocation) and message normalization for arbitrary panic values
//
// The package intentionally keeps execution concerns (lookup, validation,
// tracing) out of scope; those live in the tool, invoker and tracing packages.
package core
