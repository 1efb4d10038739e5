// Package llm provides the HTTP client for an OpenAI-compatible chat
// completions endpoint with tool-calling support, retry logic, and circuit
// breaker. The public surface speaks the agent package's conversation types;
// conversion to the wire format happens inside the client. An embeddings
// call rides the same transport for the knowledge-base search path.
package llm

import (
	"encoding/json"

	"github.com/attachehq/attache/internal/agent"
)

// message is a single chat message in the OpenAI-compatible wire format.
type message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// toolCall is a model-requested tool invocation on the wire.
type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

// functionCall carries the function name and raw JSON arguments.
type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// toolDefinition advertises one callable tool to the model.
type toolDefinition struct {
	Type     string             `json:"type"`
	Function functionDefinition `json:"function"`
}

// functionDefinition describes a function's name, purpose, and parameter schema.
type functionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// chatRequest is the request body for chat completions.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []message        `json:"messages"`
	Tools       []toolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

// chatResponse is the response body for chat completions.
type chatResponse struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Choices []choice         `json:"choices"`
	Usage   agent.TokenUsage `json:"usage"`
}

// choice is one completion choice from the model.
type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// embeddingsRequest is the request body for the embeddings endpoint.
type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingsResponse is the response body for the embeddings endpoint.
type embeddingsResponse struct {
	Data  []embeddingData  `json:"data"`
	Usage agent.TokenUsage `json:"usage"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// toWireRequest converts an agent-level request to the wire format.
func toWireRequest(req agent.ChatRequest) chatRequest {
	out := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	out.Messages = make([]message, 0, len(req.Messages))
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toWireMessage(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, toolDefinition{
			Type: "function",
			Function: functionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func toWireMessage(m agent.Message) message {
	out := message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, toolCall{
			ID:   tc.ID,
			Type: "function",
			Function: functionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

func fromWireMessage(m message) agent.Message {
	out := agent.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
