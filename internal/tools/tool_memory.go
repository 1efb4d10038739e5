package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/mem0"
)

// memoryDefaultLimit is how many memories a search returns by default.
const memoryDefaultLimit = 5

// MemoryStore is the long-term memory service behind the memory tools.
// Memories are scoped per subject, usually the requesting user.
type MemoryStore interface {
	Add(ctx context.Context, userID, text string) error
	Search(ctx context.Context, userID, query string, limit int) ([]mem0.Memory, error)
	List(ctx context.Context, userID string) ([]mem0.Memory, error)
	Delete(ctx context.Context, memoryID string) error
}

// subject resolves the memory subject: the explicit argument when given,
// otherwise the requesting user from the run context.
func subject(argUserID string, rc agent.RunContext) string {
	if s := strings.TrimSpace(argUserID); s != "" {
		return s
	}
	return rc.UserID
}

// SaveMemoryTool stores a durable fact about a user.
type SaveMemoryTool struct {
	store MemoryStore
}

// NewSaveMemoryTool creates the save_memory tool. A nil store produces a
// not-configured result at call time, as with the other memory tools.
func NewSaveMemoryTool(store MemoryStore) *SaveMemoryTool {
	return &SaveMemoryTool{store: store}
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Save a durable fact about a user for future conversations, e.g. preferences or recurring context. Do not save secrets or credentials."
}

func (t *SaveMemoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {
				"type": "string",
				"description": "The fact to remember, phrased in third person"
			},
			"user_id": {
				"type": "string",
				"description": "Whose memory this is; defaults to the requesting user"
			}
		},
		"required": ["text"]
	}`)
}

func (t *SaveMemoryTool) Kinds() KindSet { return AllKinds }

func (t *SaveMemoryTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.store == nil {
		return notConfiguredResult(call, "long-term memory"), nil
	}

	var args struct {
		Text   string `json:"text"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}
	if strings.TrimSpace(args.Text) == "" {
		return errorResultf(call, "text is required"), nil
	}

	who := subject(args.UserID, rc)
	if who == "" {
		return errorResultf(call, "no user to attach this memory to"), nil
	}

	if err := t.store.Add(ctx, who, args.Text); err != nil {
		return errorResult(call, fmt.Errorf("saving memory: %w", err)), nil
	}
	return textResult(call, "memory saved"), nil
}

// SearchMemoryTool retrieves memories relevant to a query.
type SearchMemoryTool struct {
	store MemoryStore
}

// NewSearchMemoryTool creates the search_memory tool.
func NewSearchMemoryTool(store MemoryStore) *SearchMemoryTool {
	return &SearchMemoryTool{store: store}
}

func (t *SearchMemoryTool) Name() string { return "search_memory" }

func (t *SearchMemoryTool) Description() string {
	return "Search saved memories about a user for facts relevant to the current question."
}

func (t *SearchMemoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "What to look for"
			},
			"user_id": {
				"type": "string",
				"description": "Whose memories to search; defaults to the requesting user"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of memories (default 5)"
			}
		},
		"required": ["query"]
	}`)
}

func (t *SearchMemoryTool) Kinds() KindSet { return AllKinds }

func (t *SearchMemoryTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.store == nil {
		return notConfiguredResult(call, "long-term memory"), nil
	}

	var args struct {
		Query  string `json:"query"`
		UserID string `json:"user_id"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResultf(call, "query is required"), nil
	}
	who := subject(args.UserID, rc)
	if who == "" {
		return errorResultf(call, "no user to search memories for"), nil
	}
	limit := args.Limit
	if limit <= 0 {
		limit = memoryDefaultLimit
	}

	memories, err := t.store.Search(ctx, who, args.Query, limit)
	if err != nil {
		return errorResult(call, fmt.Errorf("searching memories: %w", err)), nil
	}
	if len(memories) == 0 {
		return textResult(call, "no matching memories"), nil
	}
	return textResult(call, formatMemories(memories)), nil
}

// ListMemoriesTool returns everything remembered about a user.
type ListMemoriesTool struct {
	store MemoryStore
}

// NewListMemoriesTool creates the list_memories tool.
func NewListMemoriesTool(store MemoryStore) *ListMemoriesTool {
	return &ListMemoriesTool{store: store}
}

func (t *ListMemoriesTool) Name() string { return "list_memories" }

func (t *ListMemoriesTool) Description() string {
	return "List everything remembered about a user. Useful when they ask what you know about them."
}

func (t *ListMemoriesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_id": {
				"type": "string",
				"description": "Whose memories to list; defaults to the requesting user"
			}
		}
	}`)
}

func (t *ListMemoriesTool) Kinds() KindSet { return AllKinds }

func (t *ListMemoriesTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.store == nil {
		return notConfiguredResult(call, "long-term memory"), nil
	}

	var args struct {
		UserID string `json:"user_id"`
	}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResultf(call, "invalid arguments: %s", err), nil
		}
	}
	who := subject(args.UserID, rc)
	if who == "" {
		return errorResultf(call, "no user to list memories for"), nil
	}

	memories, err := t.store.List(ctx, who)
	if err != nil {
		return errorResult(call, fmt.Errorf("listing memories: %w", err)), nil
	}
	if len(memories) == 0 {
		return textResult(call, "nothing saved yet"), nil
	}
	return textResult(call, formatMemories(memories)), nil
}

// DeleteMemoryTool removes one memory by its ID.
type DeleteMemoryTool struct {
	store MemoryStore
}

// NewDeleteMemoryTool creates the delete_memory tool.
func NewDeleteMemoryTool(store MemoryStore) *DeleteMemoryTool {
	return &DeleteMemoryTool{store: store}
}

func (t *DeleteMemoryTool) Name() string { return "delete_memory" }

func (t *DeleteMemoryTool) Description() string {
	return "Delete one saved memory by its ID, as shown by list_memories or search_memory. Use when a fact is outdated or the user asks to forget it."
}

func (t *DeleteMemoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"memory_id": {
				"type": "string",
				"description": "The ID of the memory to delete"
			}
		},
		"required": ["memory_id"]
	}`)
}

func (t *DeleteMemoryTool) Kinds() KindSet { return AllKinds }

func (t *DeleteMemoryTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.store == nil {
		return notConfiguredResult(call, "long-term memory"), nil
	}

	var args struct {
		MemoryID string `json:"memory_id"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}
	if strings.TrimSpace(args.MemoryID) == "" {
		return errorResultf(call, "memory_id is required"), nil
	}

	if err := t.store.Delete(ctx, args.MemoryID); err != nil {
		return errorResult(call, fmt.Errorf("deleting memory: %w", err)), nil
	}
	return textResult(call, "memory deleted"), nil
}

// formatMemories renders memories one per line with their IDs, so the
// model can quote or delete them.
func formatMemories(memories []mem0.Memory) string {
	var b strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&b, "- %s", m.Text)
		if m.ID != "" {
			fmt.Fprintf(&b, " (id: %s", m.ID)
			if m.CreatedAt != "" {
				fmt.Fprintf(&b, ", saved %s", m.CreatedAt)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
