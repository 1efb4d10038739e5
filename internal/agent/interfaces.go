package agent

import "context"

// ModelProvider makes chat completion calls to a language model.
// The llm.Client satisfies this interface.
type ModelProvider interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ToolDispatcher resolves and executes tool calls on behalf of the loop.
// The tools.Registry satisfies this interface.
//
// Dispatch must be total: whatever goes wrong — unknown name, tool not
// enabled for the conversation kind, invalid input, upstream failure — it
// returns a ToolResult describing the problem and never panics or drops the
// call. The loop feeds every result back to the model verbatim.
type ToolDispatcher interface {
	// Definitions returns the tool schemas enabled for the given conversation
	// kind, in registration order. Called once per turn, so the active set
	// could in principle narrow mid-run.
	Definitions(kind Kind) []ToolDefinition

	// Dispatch validates and executes one tool call with the run's ambient
	// context.
	Dispatch(ctx context.Context, call ToolCall, rc RunContext) ToolResult
}
