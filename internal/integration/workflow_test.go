// Package integration provides integration tests that drive the real
// orchestration loop, model client and tool registry against mock external
// dependencies (OpenRouter, Exa).
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/exa"
	"github.com/attachehq/attache/internal/llm"
	"github.com/attachehq/attache/internal/tools"
)

// --- Mock OpenRouter Server ---

// mockOpenRouterServer simulates the OpenRouter chat completions API with a
// scripted sequence of responses. Calls beyond the script repeat the last
// response, which lets a single tool-call response drive a runner into its
// turn cap. Every request body is captured for assertions.
type mockOpenRouterServer struct {
	mu        sync.Mutex
	calls     int
	requests  []map[string]any
	responses []mockResponse
	server    *httptest.Server
}

type mockResponse struct {
	content   string
	toolCalls []mockToolCall
}

type mockToolCall struct {
	id        string
	name      string
	arguments string
}

func newMockOpenRouter(responses ...mockResponse) *mockOpenRouterServer {
	m := &mockOpenRouterServer{responses: responses}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *mockOpenRouterServer) handle(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	resp := m.responses[idx]

	message := map[string]any{
		"role": "assistant",
	}
	if len(resp.toolCalls) > 0 {
		tcs := make([]map[string]any, len(resp.toolCalls))
		for i, tc := range resp.toolCalls {
			tcs[i] = map[string]any{
				"id":   tc.id,
				"type": "function",
				"function": map[string]any{
					"name":      tc.name,
					"arguments": tc.arguments,
				},
			}
		}
		message["tool_calls"] = tcs
	} else {
		message["content"] = resp.content
	}

	result := map[string]any{
		"id":    fmt.Sprintf("gen-%d", idx),
		"model": "test-model",
		"choices": []map[string]any{
			{"index": 0, "message": message, "finish_reason": "stop"},
		},
		"usage": map[string]any{
			"prompt_tokens":     100,
			"completion_tokens": 50,
			"total_tokens":      150,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (m *mockOpenRouterServer) close() {
	m.server.Close()
}

func (m *mockOpenRouterServer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// request returns the i-th captured request body, or nil when fewer requests
// arrived.
func (m *mockOpenRouterServer) request(i int) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		return nil
	}
	return m.requests[i]
}

// --- Mock Exa Server ---

// mockExaServer simulates the Exa search API, recording every query and
// answering each one with the same configured result set.
type mockExaServer struct {
	mu      sync.Mutex
	queries []string
	results []map[string]any
	server  *httptest.Server
}

func newMockExa(results ...map[string]any) *mockExaServer {
	m := &mockExaServer{results: results}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *mockExaServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	m.queries = append(m.queries, req.Query)
	m.mu.Unlock()

	results := m.results
	if results == nil {
		results = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func (m *mockExaServer) close() {
	m.server.Close()
}

func (m *mockExaServer) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

func (m *mockExaServer) query(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.queries) {
		return ""
	}
	return m.queries[i]
}

// --- Harness ---

// newTestRunner wires a real model client and tool registry against the
// mocks. A nil exa mock leaves web search unconfigured, exactly as a
// workspace without an Exa key runs.
func newTestRunner(t *testing.T, or *mockOpenRouterServer, exaMock *mockExaServer, maxTurns int) *agent.Runner {
	t.Helper()

	nop := slog.New(slog.NewTextHandler(io.Discard, nil))

	var searcher tools.WebSearcher
	if exaMock != nil {
		searcher = exa.NewClient("exa-test-key",
			exa.WithBaseURL(exaMock.server.URL),
			exa.WithLogger(nop),
		)
	}

	reg := tools.NewRegistry(nop)
	reg.MustRegister(tools.NewWebSearchTool(searcher))

	model := llm.NewClient("test-key",
		llm.WithBaseURL(or.server.URL),
		llm.WithLogger(nop),
	)

	return agent.NewRunner(model, reg, agent.Config{
		Model:    "test-model",
		MaxTurns: maxTurns,
	}, agent.WithLogger(nop))
}

func dmRunContext() agent.RunContext {
	return agent.RunContext{
		ChannelID: "C123",
		ThreadTS:  "1700000001.000100",
		UserID:    "U456",
		Kind:      agent.KindDirectMessage,
	}
}

func userTranscript(text string) []agent.Message {
	return []agent.Message{{Role: "user", Content: text}}
}

// --- Integration Tests ---

func TestRun_DirectAnswer(t *testing.T) {
	or := newMockOpenRouter(mockResponse{content: "Paris is the capital of France."})
	defer or.close()

	runner := newTestRunner(t, or, nil, 5)

	result, err := runner.Run(context.Background(), userTranscript("What is the capital of France?"), dmRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.State != agent.StateAnswered {
		t.Errorf("state = %q, want %q", result.State, agent.StateAnswered)
	}
	if result.Text != "Paris is the capital of France." {
		t.Errorf("text = %q", result.Text)
	}
	if result.TurnsUsed != 1 {
		t.Errorf("turns = %d, want 1", result.TurnsUsed)
	}
	if result.ToolCalls != 0 {
		t.Errorf("tool calls = %d, want 0", result.ToolCalls)
	}
	if result.Usage.TotalTokens != 150 {
		t.Errorf("total tokens = %d, want 150", result.Usage.TotalTokens)
	}
}

func TestRun_WebSearchRoundTrip(t *testing.T) {
	exaMock := newMockExa(map[string]any{
		"title": "Go 1.24 Release Notes",
		"url":   "https://go.dev/doc/go1.24",
		"text":  "Go 1.24 adds generic type aliases and improves runtime performance.",
	})
	defer exaMock.close()

	or := newMockOpenRouter(
		mockResponse{toolCalls: []mockToolCall{
			{id: "tc1", name: "web_search", arguments: `{"query":"go 1.24 release"}`},
		}},
		mockResponse{content: "Go 1.24 adds generic type aliases."},
	)
	defer or.close()

	runner := newTestRunner(t, or, exaMock, 5)

	result, err := runner.Run(context.Background(), userTranscript("What changed in Go 1.24?"), dmRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.State != agent.StateAnswered {
		t.Errorf("state = %q, want %q", result.State, agent.StateAnswered)
	}
	if result.TurnsUsed != 2 {
		t.Errorf("turns = %d, want 2", result.TurnsUsed)
	}
	if result.ToolCalls != 1 {
		t.Errorf("tool calls = %d, want 1", result.ToolCalls)
	}
	if result.Usage.TotalTokens != 300 {
		t.Errorf("total tokens = %d, want 300", result.Usage.TotalTokens)
	}

	// The search query the model asked for must reach Exa verbatim.
	if exaMock.queryCount() != 1 {
		t.Fatalf("exa queries = %d, want 1", exaMock.queryCount())
	}
	if got := exaMock.query(0); got != "go 1.24 release" {
		t.Errorf("exa query = %q", got)
	}

	// The first request advertises the tool to the model.
	first := or.request(0)
	if first == nil {
		t.Fatal("first model request not captured")
	}
	defs, _ := first["tools"].([]any)
	if len(defs) != 1 {
		t.Fatalf("advertised tools = %d, want 1", len(defs))
	}
	def := defs[0].(map[string]any)
	fn := def["function"].(map[string]any)
	if fn["name"] != "web_search" {
		t.Errorf("advertised tool = %v, want web_search", fn["name"])
	}

	// The second request must carry the tool result back, tied to the call ID.
	second := or.request(1)
	if second == nil {
		t.Fatal("second model request not captured")
	}
	msgs, _ := second["messages"].([]any)
	if len(msgs) == 0 {
		t.Fatal("second request has no messages")
	}
	last := msgs[len(msgs)-1].(map[string]any)
	if last["role"] != "tool" {
		t.Errorf("last message role = %v, want tool", last["role"])
	}
	if last["tool_call_id"] != "tc1" {
		t.Errorf("tool_call_id = %v, want tc1", last["tool_call_id"])
	}
	content, _ := last["content"].(string)
	if !strings.Contains(content, "go.dev/doc/go1.24") {
		t.Errorf("tool message missing the search result URL: %q", content)
	}
}

func TestRun_UnknownToolErrorFedBack(t *testing.T) {
	or := newMockOpenRouter(
		mockResponse{toolCalls: []mockToolCall{
			{id: "tc1", name: "launch_rocket", arguments: `{}`},
		}},
		mockResponse{content: "I can't do that."},
	)
	defer or.close()

	runner := newTestRunner(t, or, nil, 5)

	result, err := runner.Run(context.Background(), userTranscript("Launch the rocket"), dmRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != agent.StateAnswered {
		t.Errorf("state = %q, want %q", result.State, agent.StateAnswered)
	}

	second := or.request(1)
	if second == nil {
		t.Fatal("second model request not captured")
	}
	msgs, _ := second["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	content, _ := last["content"].(string)
	if !strings.Contains(content, `unknown tool "launch_rocket"`) {
		t.Errorf("model was not told the tool is unknown: %q", content)
	}
}

func TestRun_InvalidArgumentsRejectedBeforeExecution(t *testing.T) {
	exaMock := newMockExa()
	defer exaMock.close()

	or := newMockOpenRouter(
		mockResponse{toolCalls: []mockToolCall{
			{id: "tc1", name: "web_search", arguments: `{"max_results":"ten"}`},
		}},
		mockResponse{content: "Let me try something else."},
	)
	defer or.close()

	runner := newTestRunner(t, or, exaMock, 5)

	result, err := runner.Run(context.Background(), userTranscript("Search for something"), dmRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != agent.StateAnswered {
		t.Errorf("state = %q, want %q", result.State, agent.StateAnswered)
	}

	// Schema validation fires before the tool runs, so Exa never sees a call.
	if exaMock.queryCount() != 0 {
		t.Errorf("exa queries = %d, want 0", exaMock.queryCount())
	}

	second := or.request(1)
	if second == nil {
		t.Fatal("second model request not captured")
	}
	msgs, _ := second["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	content, _ := last["content"].(string)
	if !strings.Contains(content, "invalid arguments") {
		t.Errorf("model was not told the arguments were invalid: %q", content)
	}
}

func TestRun_NotConfiguredToolAnswersGracefully(t *testing.T) {
	or := newMockOpenRouter(
		mockResponse{toolCalls: []mockToolCall{
			{id: "tc1", name: "web_search", arguments: `{"query":"anything"}`},
		}},
		mockResponse{content: "I can't search the web in this workspace."},
	)
	defer or.close()

	// No Exa mock: the tool is registered but has no client behind it.
	runner := newTestRunner(t, or, nil, 5)

	result, err := runner.Run(context.Background(), userTranscript("Search the web for anything"), dmRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != agent.StateAnswered {
		t.Errorf("state = %q, want %q", result.State, agent.StateAnswered)
	}

	second := or.request(1)
	if second == nil {
		t.Fatal("second model request not captured")
	}
	msgs, _ := second["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	content, _ := last["content"].(string)
	if !strings.Contains(content, "not configured") {
		t.Errorf("model was not told the tool is unconfigured: %q", content)
	}
}

func TestRun_TurnCapStops(t *testing.T) {
	exaMock := newMockExa(map[string]any{
		"title": "Result",
		"url":   "https://example.com",
		"text":  "Some text.",
	})
	defer exaMock.close()

	// A single scripted response repeats forever: the model keeps asking for
	// another search on every turn.
	or := newMockOpenRouter(
		mockResponse{toolCalls: []mockToolCall{
			{id: "tc1", name: "web_search", arguments: `{"query":"again"}`},
		}},
	)
	defer or.close()

	runner := newTestRunner(t, or, exaMock, 3)

	result, err := runner.Run(context.Background(), userTranscript("Keep searching"), dmRunContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.State != agent.StateBudgetExhausted {
		t.Errorf("state = %q, want %q", result.State, agent.StateBudgetExhausted)
	}
	if result.TurnsUsed != 3 {
		t.Errorf("turns = %d, want 3", result.TurnsUsed)
	}
	if result.ToolCalls != 3 {
		t.Errorf("tool calls = %d, want 3", result.ToolCalls)
	}
	if or.callCount() != 3 {
		t.Errorf("model calls = %d, want 3", or.callCount())
	}
	if exaMock.queryCount() != 3 {
		t.Errorf("exa queries = %d, want 3", exaMock.queryCount())
	}
}

func TestRun_ConcurrentRuns(t *testing.T) {
	or := newMockOpenRouter(mockResponse{content: "ok"})
	defer or.close()

	runner := newTestRunner(t, or, nil, 5)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := runner.Run(context.Background(), userTranscript("hi"), dmRunContext())
			if err != nil {
				t.Errorf("Run: %v", err)
				return
			}
			if result.State != agent.StateAnswered {
				t.Errorf("state = %q, want %q", result.State, agent.StateAnswered)
			}
		}()
	}
	wg.Wait()

	if or.callCount() != 10 {
		t.Errorf("model calls = %d, want 10", or.callCount())
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	or := newMockOpenRouter(mockResponse{content: "never sent"})
	defer or.close()

	runner := newTestRunner(t, or, nil, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, userTranscript("hi"), dmRunContext())
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if or.callCount() != 0 {
		t.Errorf("model calls = %d, want 0", or.callCount())
	}
}
