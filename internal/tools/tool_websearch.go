package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/exa"
)

// WebSearcher executes web searches.
type WebSearcher interface {
	Search(ctx context.Context, req exa.SearchRequest) ([]exa.Result, error)
}

// CompanyResearcher runs focused company lookups.
type CompanyResearcher interface {
	ResearchCompany(ctx context.Context, req exa.CompanyRequest) ([]exa.Result, error)
}

// WebSearchTool searches the web with optional recency filtering.
type WebSearchTool struct {
	searcher WebSearcher
}

// NewWebSearchTool creates the web_search tool. A nil searcher produces a
// not-configured result at call time.
func NewWebSearchTool(searcher WebSearcher) *WebSearchTool {
	return &WebSearchTool{searcher: searcher}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web. Returns results with title, URL, publish date and a relevant excerpt. Use recency to restrict how fresh results must be."
}

func (t *WebSearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query"
			},
			"recency": {
				"type": "string",
				"enum": ["day", "week", "month", "year"],
				"description": "Only return results published within this window"
			},
			"max_results": {
				"type": "integer",
				"description": "Maximum number of results (default 5, max 10)"
			}
		},
		"required": ["query"]
	}`)
}

func (t *WebSearchTool) Kinds() KindSet { return AllKinds }

func (t *WebSearchTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.searcher == nil {
		return notConfiguredResult(call, "web search"), nil
	}

	var args struct {
		Query      string `json:"query"`
		Recency    string `json:"recency"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResultf(call, "query is required"), nil
	}

	rc.Notify("Searching the web for “" + args.Query + "”…")

	results, err := t.searcher.Search(ctx, exa.SearchRequest{
		Query:      args.Query,
		Recency:    args.Recency,
		NumResults: args.MaxResults,
	})
	if err != nil {
		return errorResult(call, fmt.Errorf("web search failed: %w", err)), nil
	}
	if len(results) == 0 {
		return textResult(call, "no results found"), nil
	}

	return textResult(call, formatSearchResults(results, args.Query)), nil
}

// CompanyResearchTool profiles a company from its web presence.
type CompanyResearchTool struct {
	researcher CompanyResearcher
}

// NewCompanyResearchTool creates the company_research tool. A nil researcher
// produces a not-configured result at call time.
func NewCompanyResearchTool(researcher CompanyResearcher) *CompanyResearchTool {
	return &CompanyResearchTool{researcher: researcher}
}

func (t *CompanyResearchTool) Name() string { return "company_research" }

func (t *CompanyResearchTool) Description() string {
	return "Research a specific company: official site, about and product pages, pricing, recent news. Use for questions about one company rather than general web search."
}

func (t *CompanyResearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"company": {
				"type": "string",
				"description": "Company name or domain, e.g. \"Patagonia\" or \"patagonia.com\""
			},
			"max_results": {
				"type": "integer",
				"description": "Maximum number of results (default 5, max 10)"
			}
		},
		"required": ["company"]
	}`)
}

func (t *CompanyResearchTool) Kinds() KindSet { return AllKinds }

func (t *CompanyResearchTool) Execute(ctx context.Context, call agent.ToolCall, rc agent.RunContext) (agent.ToolResult, error) {
	if t.researcher == nil {
		return notConfiguredResult(call, "company research"), nil
	}

	var args struct {
		Company    string `json:"company"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResultf(call, "invalid arguments: %s", err), nil
	}
	if strings.TrimSpace(args.Company) == "" {
		return errorResultf(call, "company is required"), nil
	}

	rc.Notify("Researching " + args.Company + "…")

	results, err := t.researcher.ResearchCompany(ctx, exa.CompanyRequest{
		Company:    args.Company,
		NumResults: args.MaxResults,
	})
	if err != nil {
		return errorResult(call, fmt.Errorf("company research failed: %w", err)), nil
	}
	if len(results) == 0 {
		return textResult(call, "no information found for "+args.Company), nil
	}

	return textResult(call, formatSearchResults(results, args.Company)), nil
}

// formatSearchResults renders results as numbered entries with previews
// windowed around the query terms.
func formatSearchResults(results []exa.Result, query string) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.PublishedDate != "" {
			fmt.Fprintf(&b, "   published: %s\n", r.PublishedDate)
		}
		if text := Preview(r.Text, query, previewLimit); text != "" {
			fmt.Fprintf(&b, "   %s\n", text)
		}
		for _, sp := range r.Subpages {
			fmt.Fprintf(&b, "   - %s (%s)\n", sp.Title, sp.URL)
			if text := Preview(sp.Text, query, previewLimit/2); text != "" {
				fmt.Fprintf(&b, "     %s\n", text)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
