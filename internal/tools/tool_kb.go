package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/qdrant"
)

// kbDefaultLimit is how many knowledge base hits come back by default.
const kbDefaultLimit = 5

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex searches a vector collection. Hits below the index's score
// threshold are already filtered out.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, limit int) ([]qdrant.ScoredPoint, error)
}

// KnowledgeBaseTool answers questions from the company's document index:
// the query is embedded, then matched against the vector collection.
type KnowledgeBaseTool struct {
	embedder Embedder
	index    VectorIndex
}

// NewKnowledgeBaseTool creates the search_knowledge_base tool. Nil
// collaborators produce a not-configured result at call time.
func NewKnowledgeBaseTool(embedder Embedder, index VectorIndex) *KnowledgeBaseTool {
	return &KnowledgeBaseTool{embedder: embedder, index: index}
}

func (t *KnowledgeBaseTool) Name() string { return "search_knowledge_base" }

func (t *KnowledgeBaseTool) Description() string {
	return "Search the company's internal knowledge base (policies, guides, documentation). Use this before answering questions about how things work here."
}

func (t *KnowledgeBaseTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "What to look for, phrased as a question or topic"
			},
			"max_results": {
				"type": "integer",
				"description": "Maximum number of documents to return (default 5, max 10)"
			}
		},
		"required": ["query"]
	}`)
}

func (t *KnowledgeBaseTool) Kinds() KindSet { return AllKinds }

func (t *KnowledgeBaseTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.embedder == nil || t.index == nil {
		return notConfiguredResult(call, "the knowledge base"), nil
	}

	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResultf(call, "query is required"), nil
	}
	limit := args.MaxResults
	if limit <= 0 {
		limit = kbDefaultLimit
	}
	if limit > 10 {
		limit = 10
	}

	rc.Notify("Searching the knowledge base…")

	vector, err := t.embedder.Embed(ctx, args.Query)
	if err != nil {
		return errorResult(call, fmt.Errorf("embedding query: %w", err)), nil
	}

	hits, err := t.index.Query(ctx, vector, limit)
	if err != nil {
		return errorResult(call, fmt.Errorf("knowledge base search failed: %w", err)), nil
	}
	if len(hits) == 0 {
		return textResult(call, "no relevant documents found; answer from general knowledge and say the knowledge base had nothing on this"), nil
	}

	return textResult(call, formatKBHits(hits, args.Query)), nil
}

// formatKBHits renders scored documents with source attribution and a
// preview windowed around the query terms.
func formatKBHits(hits []qdrant.ScoredPoint, query string) string {
	var b strings.Builder
	for i, h := range hits {
		title := payloadString(h.Payload, "title")
		if title == "" {
			title = "document " + h.ID
		}
		fmt.Fprintf(&b, "%d. %s (score %.2f)\n", i+1, title, h.Score)
		if source := payloadString(h.Payload, "source"); source != "" {
			fmt.Fprintf(&b, "   source: %s\n", source)
		}
		if text := Preview(payloadText(h.Payload), query, previewLimit); text != "" {
			fmt.Fprintf(&b, "   %s\n", text)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// payloadText finds the document body under the common key names.
func payloadText(payload map[string]any) string {
	for _, key := range []string{"text", "content", "body"} {
		if s := payloadString(payload, key); s != "" {
			return s
		}
	}
	return ""
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
