// Package agent implements the orchestration loop at the heart of attaché:
// model call → tool calls → execute → append results → repeat, until the model
// produces a final text answer or the turn budget runs out. It is
// provider-agnostic and communicates through interfaces (ModelProvider,
// ToolDispatcher), making it independently testable.
package agent

import "encoding/json"

// Message is one entry in the transcript sent to the model.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// ToolResult is the outcome of executing one tool call. Failures are encoded
// in Content with IsError set; a ToolResult is produced for every call,
// whatever happened during execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes one callable tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is a request to the model provider.
type ChatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

// ChatResponse is the model's reply to one ChatRequest.
type ChatResponse struct {
	Message Message    `json:"message"`
	Usage   TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption for one or more model calls.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u2 into u.
func (u *TokenUsage) Add(u2 TokenUsage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
}

// State is the terminal state of a run.
type State string

const (
	// StateAnswered means the model produced a final text answer.
	StateAnswered State = "answered"
	// StateBudgetExhausted means the turn cap was hit before a final answer;
	// the run returns whatever text the model last produced, possibly empty.
	StateBudgetExhausted State = "budget_exhausted"
)

// Result is the outcome of one orchestration run.
type Result struct {
	Text      string     // final answer text
	State     State      // how the run ended
	TurnsUsed int        // number of model calls made
	ToolCalls int        // total tool executions across all turns
	Usage     TokenUsage // cumulative token usage
}

// Config configures a Runner instance.
type Config struct {
	Model        string   // model ID for the provider
	MaxTurns     int      // model-call ceiling per run; DefaultMaxTurns if <= 0
	SystemPrompt string   // persona prompt, prepended to the transcript
	Temperature  *float64 // optional sampling temperature
}
