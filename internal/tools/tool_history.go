package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/slackbot"
)

// defaultHistoryLimit is how many messages the history tools return when
// the model does not ask for a specific count.
const defaultHistoryLimit = 20

// HistoryProvider fetches conversation history from the workspace.
type HistoryProvider interface {
	GetThreadMessages(ctx context.Context, channelID, threadTS string) ([]slackbot.Message, error)
	GetChannelMessages(ctx context.Context, channelID string) ([]slackbot.Message, error)
}

// ThreadHistoryTool returns the messages of the current assistant thread.
// Offered in DMs only; the channel surface gets ChannelHistoryTool instead.
type ThreadHistoryTool struct {
	history HistoryProvider
}

// NewThreadHistoryTool creates the get_thread_history tool.
func NewThreadHistoryTool(history HistoryProvider) *ThreadHistoryTool {
	return &ThreadHistoryTool{history: history}
}

func (t *ThreadHistoryTool) Name() string { return "get_thread_history" }

func (t *ThreadHistoryTool) Description() string {
	return "Get the messages of this conversation thread, oldest first. Useful when the user refers to something said earlier."
}

func (t *ThreadHistoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"limit": {
				"type": "integer",
				"description": "Maximum number of messages to return (default 20, max 50)"
			}
		}
	}`)
}

func (t *ThreadHistoryTool) Kinds() KindSet { return DirectMessageOnly }

func (t *ThreadHistoryTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	var args struct {
		Limit int `json:"limit"`
	}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResultf(call, "invalid arguments: %s", err), nil
		}
	}

	msgs, err := t.history.GetThreadMessages(ctx, rc.ChannelID, rc.ThreadTS)
	if err != nil {
		return errorResultf(call, "fetching thread history: %s", err), nil
	}
	return textResult(call, formatHistory(msgs, args.Limit)), nil
}

// ChannelHistoryTool returns the recent messages of the current channel.
// Offered on channel mentions only.
type ChannelHistoryTool struct {
	history HistoryProvider
}

// NewChannelHistoryTool creates the get_channel_history tool.
func NewChannelHistoryTool(history HistoryProvider) *ChannelHistoryTool {
	return &ChannelHistoryTool{history: history}
}

func (t *ChannelHistoryTool) Name() string { return "get_channel_history" }

func (t *ChannelHistoryTool) Description() string {
	return "Get the recent messages of this channel, oldest first. Useful for summarizing or catching up on a discussion."
}

func (t *ChannelHistoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"limit": {
				"type": "integer",
				"description": "Maximum number of messages to return (default 20, max 50)"
			}
		}
	}`)
}

func (t *ChannelHistoryTool) Kinds() KindSet { return ChannelOnly }

func (t *ChannelHistoryTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	var args struct {
		Limit int `json:"limit"`
	}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResultf(call, "invalid arguments: %s", err), nil
		}
	}

	msgs, err := t.history.GetChannelMessages(ctx, rc.ChannelID)
	if err != nil {
		return errorResultf(call, "fetching channel history: %s", err), nil
	}
	return textResult(call, formatHistory(msgs, args.Limit)), nil
}

// formatHistory renders messages one per line, keeping only the newest
// limit entries. Attached files become indented annotations so the model
// can pick up file IDs for the image tools.
func formatHistory(msgs []slackbot.Message, limit int) string {
	if limit <= 0 || limit > 50 {
		limit = defaultHistoryLimit
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if len(msgs) == 0 {
		return "no messages found"
	}

	var b strings.Builder
	for _, m := range msgs {
		who := "<@" + m.User + ">"
		if m.FromBot() {
			who = "assistant"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp, who, strings.TrimSpace(m.Text))
		for _, f := range m.Files {
			b.WriteString("    " + slackbot.FileAnnotation(f) + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}
