package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/budget"
	"github.com/attachehq/attache/internal/config"
	"github.com/attachehq/attache/internal/llm"
	"github.com/attachehq/attache/internal/router"
	"github.com/attachehq/attache/internal/slackbot"
	"github.com/attachehq/attache/internal/store"
)

func testLogger() (*slog.Logger, *LogBuffer) {
	buf := NewLogBuffer(64)
	return slog.New(&bufferHandler{next: slog.NewTextHandler(io.Discard, nil), buf: buf}), buf
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "attache.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger, logs := testLogger()
	cfg := &config.Config{Persona: "assistant"}
	return New(cfg, st, "test", logger, logs)
}

// A config with no integrations still yields a full registry; the optional
// tools answer with a not-configured notice instead of disappearing.
func TestBuildRegistry_UnconfiguredIntegrations(t *testing.T) {
	d := newTestDaemon(t)
	reg := d.buildRegistry(llm.NewClient("test-key"), slackbot.NewClient("xoxb-test", "xapp-test"))

	rc := agent.RunContext{ChannelID: "D1", ThreadTS: "1", UserID: "U1", Kind: agent.KindDirectMessage}
	cases := map[string]string{
		"web_search":            `{"query": "solar roof tiles"}`,
		"company_research":      `{"company": "Acme"}`,
		"search_knowledge_base": `{"query": "vacation policy"}`,
		"search_products":       `{"keywords": "bottle"}`,
		"get_product_details":   `{"product_id": 7}`,
		"check_inventory":       `{"product_id": 7}`,
		"vectorize_image":       `{"image_url": "https://example.com/shoe.jpg"}`,
		"save_memory":           `{"text": "prefers metric units"}`,
		"search_memory":         `{"query": "units"}`,
		"list_memories":         `{}`,
		"delete_memory":         `{"memory_id": "m-1"}`,
	}
	for name, args := range cases {
		result := reg.Dispatch(context.Background(), agent.ToolCall{ID: "c1", Name: name, Arguments: args}, rc)
		if !result.IsError {
			t.Errorf("%s: expected an error result, got %q", name, result.Content)
			continue
		}
		if !strings.Contains(result.Content, "not configured") {
			t.Errorf("%s: expected not-configured notice, got %q", name, result.Content)
		}
	}
}

func TestBuildRegistry_SurfaceCounts(t *testing.T) {
	d := newTestDaemon(t)
	reg := d.buildRegistry(llm.NewClient("test-key"), slackbot.NewClient("xoxb-test", "xapp-test"))

	// 14 tools total; each surface sees all but the other surface's
	// history tool.
	if got := len(reg.Definitions(agent.KindDirectMessage)); got != 13 {
		t.Errorf("dm definitions: got %d", got)
	}
	if got := len(reg.Definitions(agent.KindChannel)); got != 13 {
		t.Errorf("channel definitions: got %d", got)
	}
}

func TestFindAvailablePort(t *testing.T) {
	port := findAvailablePort(3000, 3100)
	if port < 3000 || port >= 3100 {
		t.Fatalf("port out of range: %d", port)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if second := findAvailablePort(port, port+2); second == port {
		t.Error("busy port not skipped")
	}
	if got := findAvailablePort(3000, 3000); got != 0 {
		t.Errorf("empty range must yield 0, got %d", got)
	}
}

func TestHandleAPIStatus(t *testing.T) {
	d := newTestDaemon(t)
	d.mu.Lock()
	d.personaName = "assistant"
	d.model = "openai/gpt-4o"
	d.mu.Unlock()

	rec := httptest.NewRecorder()
	d.handleAPIStatus(rec, httptest.NewRequest("GET", "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["version"] != "test" || status["persona"] != "assistant" || status["model"] != "openai/gpt-4o" {
		t.Errorf("unexpected status payload: %v", status)
	}
	if _, ok := status["runs"]; !ok {
		t.Error("run stats missing from status")
	}
}

func TestHandleAPIStatus_BudgetAndConversations(t *testing.T) {
	d := newTestDaemon(t)
	tracker := budget.NewTracker(1000)
	tracker.Seed(250)
	d.mu.Lock()
	d.tokens = tracker
	d.conversations = router.NewRegistry(func(context.Context, slackbot.MessageEvent) {})
	d.mu.Unlock()

	rec := httptest.NewRecorder()
	d.handleAPIStatus(rec, httptest.NewRequest("GET", "/api/status", nil))

	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	tokens, ok := status["tokens"].(map[string]any)
	if !ok {
		t.Fatalf("tokens missing from status: %v", status)
	}
	if tokens["used_today"].(float64) != 250 || tokens["remaining_today"].(float64) != 750 {
		t.Errorf("unexpected token accounting: %v", tokens)
	}
	if status["conversations"].(float64) != 0 {
		t.Errorf("conversations: got %v", status["conversations"])
	}
}

func TestHandleAPIRuns(t *testing.T) {
	d := newTestDaemon(t)
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		err := d.st.RecordRun(store.Run{ID: id, ChannelID: "D1", Source: "dm", State: "answered"})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	d.handleAPIRuns(rec, httptest.NewRequest("GET", "/api/runs?limit=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var runs []store.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-3" {
		t.Errorf("newest first: got %q", runs[0].ID)
	}

	rec = httptest.NewRecorder()
	d.handleAPIRuns(rec, httptest.NewRequest("GET", "/api/runs?limit=zap", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit must 400, got %d", rec.Code)
	}
}

func TestHandleAPIRuns_EmptyIsArray(t *testing.T) {
	d := newTestDaemon(t)

	rec := httptest.NewRecorder()
	d.handleAPIRuns(rec, httptest.NewRequest("GET", "/api/runs", nil))

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("empty result must encode as [], got %q", got)
	}
}

func TestHandleAPILogs(t *testing.T) {
	d := newTestDaemon(t)
	d.logs.add(LogEntry{Time: time.Now(), Level: "INFO", Message: "one"})
	d.logs.add(LogEntry{Time: time.Now(), Level: "ERROR", Message: "two"})

	rec := httptest.NewRecorder()
	d.handleAPILogs(rec, httptest.NewRequest("GET", "/api/logs", nil))

	var out []struct {
		Time    string `json:"time"`
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].Message != "one" || out[1].Level != "ERROR" {
		t.Errorf("unexpected log payload: %+v", out)
	}
}

func TestHandleDashboard(t *testing.T) {
	d := newTestDaemon(t)

	rec := httptest.NewRecorder()
	d.handleDashboard(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "attaché") || !strings.Contains(body, "/ws/logs") {
		t.Error("dashboard page incomplete")
	}

	rec = httptest.NewRecorder()
	d.handleDashboard(rec, httptest.NewRequest("GET", "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path must 404, got %d", rec.Code)
	}
}

func TestHandleWSLogs_StreamsEntries(t *testing.T) {
	d := newTestDaemon(t)
	srv := httptest.NewServer(http.HandlerFunc(d.handleWSLogs))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return d.logs.subscriberCount() == 1 })
	d.logs.add(LogEntry{Time: time.Now(), Level: "ERROR", Message: "boom"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload map[string]string
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read: %v", err)
	}
	if payload["level"] != "ERROR" || payload["message"] != "boom" {
		t.Errorf("unexpected payload: %v", payload)
	}
}
