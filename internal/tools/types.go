// Package tools defines the tool interface, the registry the orchestration
// loop dispatches through, and the adapters that wrap upstream services as
// model-callable tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/attachehq/attache/internal/agent"
)

// KindSet says which conversation surfaces a tool is offered on.
type KindSet int

const (
	// AllKinds tools appear in DMs and channels alike.
	AllKinds KindSet = iota
	// DirectMessageOnly tools appear only in 1:1 assistant threads.
	DirectMessageOnly
	// ChannelOnly tools appear only on channel mentions.
	ChannelOnly
)

// Allows reports whether the set includes the given surface.
func (k KindSet) Allows(kind agent.Kind) bool {
	switch k {
	case DirectMessageOnly:
		return kind == agent.KindDirectMessage
	case ChannelOnly:
		return kind == agent.KindChannel
	default:
		return true
	}
}

// String returns the human-readable name of the kind set.
func (k KindSet) String() string {
	switch k {
	case DirectMessageOnly:
		return "DM_ONLY"
	case ChannelOnly:
		return "CHANNEL_ONLY"
	default:
		return "ALL"
	}
}

// Tool is the interface all tool adapters implement.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string
	// Description returns a human-readable description for the model.
	Description() string
	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() json.RawMessage
	// Kinds returns the conversation surfaces the tool is offered on.
	Kinds() KindSet
	// Execute runs the tool. Expected failures (bad input, upstream errors)
	// come back as an IsError result with a nil error; a non-nil error means
	// the adapter itself misbehaved.
	Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error)
}

// statusCoder is satisfied by the upstream clients' APIError types.
type statusCoder interface {
	HTTPStatus() int
}

// errorResult renders err as a soft tool failure the model can react to.
// Upstream HTTP errors get a remediation hint appended so the model knows
// whether retrying, rephrasing or giving up is the right move.
func errorResult(call agent.ToolCall, err error) agent.ToolResult {
	return agent.ToolResult{
		ToolCallID: call.ID,
		Content:    err.Error() + remediationHint(err),
		IsError:    true,
	}
}

// errorResultf is errorResult for preformatted messages.
func errorResultf(call agent.ToolCall, format string, args ...any) agent.ToolResult {
	return agent.ToolResult{
		ToolCallID: call.ID,
		Content:    fmt.Sprintf(format, args...),
		IsError:    true,
	}
}

// textResult renders a successful tool output.
func textResult(call agent.ToolCall, content string) agent.ToolResult {
	return agent.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
	}
}

// jsonResult marshals v as indented JSON output.
func jsonResult(call agent.ToolCall, v any) agent.ToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResultf(call, "encoding result: %s", err)
	}
	return textResult(call, string(out))
}

// notConfiguredResult is returned by tools whose upstream service has no
// credentials configured. Soft so the model can tell the user instead of
// the run dying.
func notConfiguredResult(call agent.ToolCall, service string) agent.ToolResult {
	return agent.ToolResult{
		ToolCallID: call.ID,
		Content:    fmt.Sprintf("%s is not configured for this workspace, so this tool is unavailable; let the user know", service),
		IsError:    true,
	}
}

func remediationHint(err error) string {
	var sc statusCoder
	if !errors.As(err, &sc) {
		return ""
	}
	switch sc.HTTPStatus() {
	case 401, 403:
		return " (the API credentials look wrong; suggest checking the configured key)"
	case 404:
		return " (nothing exists under that identifier; double-check it before retrying)"
	case 429:
		return " (the service is rate limiting us; try again later, not immediately)"
	default:
		return ""
	}
}
