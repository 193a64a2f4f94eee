// Package toolpipe is the tool invocation pipeline between an LLM provider and
// the host's Go functions.
//
// # Overview
//
// A model asks for tools by name with JSON arguments. This package declares the
// tools the model may call, validates those declarations against what a given
// provider accepts, and executes the calls under a per-attempt timeout with
// bounded retries, returning one result per request in request order.
//
// Pipeline: Registry (what the model sees) → provider adapter → ToolCallRequest →
// Executor (resolve, parse, validate, invoke with retry, canonicalize) →
// ToolCallResult → provider adapter.
//
// # Key concepts
//
//   - Declaration and execution are separate: a Registry holds ToolDefinitions,
//     an Executor holds Implementations bound by name. Install wires both.
//   - Partial Success: ExecuteToolCalls collects all results; one failure does not cancel others.
//   - Self-Correction: failures carry a code and a message the model can act on
//     (tool_not_found, invalid_arguments, execution_timeout, execution_error).
//   - Fail fast at the provider boundary: Registry.ValidateToolsForProvider reports
//     definitions a provider would reject before anything goes on the wire.
//
// # Integrations
//
// Provider wire formats live in adapters/openaiadapter and
// adapters/anthropicadapter. Observability plugs in through hooks and
// middleware: ext/toolpipeotel (spans), ext/toolpipeprom (metrics) and
// ext/toolpipezap (a zap-backed Logger).
//
// # Example
//
//	type Args struct { City string `json:"city" jsonschema:"city name"` }
//	type Out  struct { Temp float64 `json:"temp"` }
//	tool, err := toolpipe.NewTool("weather", "Get weather", func(_ context.Context, a Args) (Out, error) {
//	    return Out{Temp: 22.5}, nil
//	})
//	if err != nil { ... }
//	reg := toolpipe.NewRegistry()
//	exec := toolpipe.NewExecutor(toolpipe.DefaultExecutorConfig(), toolpipe.WithRegistry(reg))
//	if err := toolpipe.Install(reg, exec, tool); err != nil { ... }
//	res := exec.ExecuteToolCall(ctx, toolpipe.ToolCallRequest{CallID: "1", Name: "weather", Arguments: `{"city":"Moscow"}`})
package toolpipe
