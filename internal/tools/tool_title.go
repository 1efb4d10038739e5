package tools

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/attachehq/attache/internal/agent"
)

// maxTitleLength bounds thread titles. Slack truncates around there anyway.
const maxTitleLength = 100

// Renamer renames a conversation thread.
type Renamer interface {
	SetTitle(ctx context.Context, channelID, threadTS, title string) error
}

// TitleTool lets the model rename the current thread once a topic emerges.
// Renaming is idempotent upstream, so repeated calls with the same title
// are harmless.
type TitleTool struct {
	renamer Renamer
}

// NewTitleTool creates the set_thread_title tool.
func NewTitleTool(renamer Renamer) *TitleTool {
	return &TitleTool{renamer: renamer}
}

func (t *TitleTool) Name() string { return "set_thread_title" }

func (t *TitleTool) Description() string {
	return "Rename this conversation thread. Use a short descriptive title once the topic is clear, so the user can find the thread later."
}

func (t *TitleTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {
				"type": "string",
				"description": "The new thread title, a few words at most"
			}
		},
		"required": ["title"]
	}`)
}

func (t *TitleTool) Kinds() KindSet { return AllKinds }

func (t *TitleTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	var args struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}

	title := strings.TrimSpace(args.Title)
	if title == "" {
		return errorResultf(call, "title is required"), nil
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		runes := []rune(title)
		title = string(runes[:maxTitleLength])
	}

	if err := t.renamer.SetTitle(ctx, rc.ChannelID, rc.ThreadTS, title); err != nil {
		return errorResultf(call, "renaming thread: %s", err), nil
	}
	return textResult(call, "thread renamed to: "+title), nil
}
