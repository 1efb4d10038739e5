package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMarkProcessed_FirstTimeThenDuplicate(t *testing.T) {
	st := newTestStore(t)

	fresh, err := st.MarkProcessed("Ev001")
	if err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if !fresh {
		t.Error("first sighting should report fresh")
	}

	fresh, err = st.MarkProcessed("Ev001")
	if err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if fresh {
		t.Error("second sighting must report duplicate")
	}
}

func TestMarkProcessed_DistinctEvents(t *testing.T) {
	st := newTestStore(t)

	for _, id := range []string{"Ev001", "Ev002", "Ev003"} {
		fresh, err := st.MarkProcessed(id)
		if err != nil {
			t.Fatalf("MarkProcessed(%s) error = %v", id, err)
		}
		if !fresh {
			t.Errorf("event %s should be fresh", id)
		}
	}
}

func TestPruneEvents(t *testing.T) {
	st := newTestStore(t)

	if _, err := st.MarkProcessed("Ev-old"); err != nil {
		t.Fatal(err)
	}

	n, err := st.PruneEvents(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneEvents() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	// A pruned event is processable again.
	fresh, err := st.MarkProcessed("Ev-old")
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Error("pruned event should be fresh again")
	}
}

func TestPruneEvents_KeepsRecent(t *testing.T) {
	st := newTestStore(t)

	if _, err := st.MarkProcessed("Ev-recent"); err != nil {
		t.Fatal(err)
	}

	n, err := st.PruneEvents(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneEvents() error = %v", err)
	}
	if n != 0 {
		t.Errorf("pruned %d rows, want 0", n)
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	st := newTestStore(t)

	run := Run{
		ID:               "run-1",
		EventID:          "Ev001",
		ChannelID:        "D100",
		ThreadTS:         "1700000001.000100",
		UserID:           "U1",
		Source:           "dm",
		Persona:          "assistant",
		Model:            "openai/gpt-4o",
		State:            "answered",
		Turns:            2,
		ToolCalls:        1,
		PromptTokens:     260,
		CompletionTokens: 60,
		DurationMS:       1500,
	}
	if err := st.RecordRun(run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	runs, err := st.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	got := runs[0]
	if got.ID != "run-1" || got.ChannelID != "D100" || got.State != "answered" {
		t.Errorf("run identity mismatch: %+v", got)
	}
	if got.Turns != 2 || got.ToolCalls != 1 || got.PromptTokens != 260 || got.CompletionTokens != 60 {
		t.Errorf("run usage mismatch: %+v", got)
	}
	if got.StartedAt == "" {
		t.Error("started_at should be stamped on insert")
	}
}

func TestRecentRuns_NewestFirstAndLimited(t *testing.T) {
	st := newTestStore(t)

	for i := 0; i < 5; i++ {
		run := Run{
			ID:        "run-" + string(rune('a'+i)),
			ChannelID: "C1",
			Source:    "channel",
			State:     "answered",
		}
		if err := st.RecordRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := st.RecentRuns(3)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	// Same-second inserts fall back to ID ordering, still newest first.
	if runs[0].ID != "run-e" {
		t.Errorf("newest run first: got %q, want %q", runs[0].ID, "run-e")
	}
}

func TestRunStats(t *testing.T) {
	st := newTestStore(t)

	seed := []Run{
		{ID: "r1", ChannelID: "D1", Source: "dm", State: "answered", ToolCalls: 2, PromptTokens: 100, CompletionTokens: 50, DurationMS: 1000},
		{ID: "r2", ChannelID: "D1", Source: "dm", State: "answered", ToolCalls: 0, PromptTokens: 40, CompletionTokens: 10, DurationMS: 500},
		{ID: "r3", ChannelID: "C1", Source: "channel", State: "failed", Error: "model unavailable", DurationMS: 300},
	}
	for _, r := range seed {
		if err := st.RecordRun(r); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := st.RunStats()
	if err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}
	if stats.TotalRuns != 3 || stats.Answered != 2 || stats.Failed != 1 {
		t.Errorf("counts mismatch: %+v", stats)
	}
	if stats.TotalToolCalls != 2 {
		t.Errorf("TotalToolCalls = %d, want 2", stats.TotalToolCalls)
	}
	if stats.TotalTokens != 200 {
		t.Errorf("TotalTokens = %d, want 200", stats.TotalTokens)
	}
	if stats.AvgDurationMS != 600 {
		t.Errorf("AvgDurationMS = %d, want 600", stats.AvgDurationMS)
	}
}

func TestRunStats_EmptyStore(t *testing.T) {
	st := newTestStore(t)

	stats, err := st.RunStats()
	if err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}
	if stats.TotalRuns != 0 || stats.TotalTokens != 0 {
		t.Errorf("empty store should aggregate to zeros: %+v", stats)
	}
}

func TestTokensToday(t *testing.T) {
	st := newTestStore(t)

	tokens, err := st.TokensToday()
	if err != nil {
		t.Fatalf("TokensToday() error = %v", err)
	}
	if tokens != 0 {
		t.Errorf("empty store tokens = %d, want 0", tokens)
	}

	seed := []Run{
		{ID: "r1", ChannelID: "D1", Source: "dm", State: "answered", PromptTokens: 100, CompletionTokens: 50},
		{ID: "r2", ChannelID: "C1", Source: "channel", State: "answered", PromptTokens: 30, CompletionTokens: 20},
	}
	for _, r := range seed {
		if err := st.RecordRun(r); err != nil {
			t.Fatal(err)
		}
	}

	tokens, err = st.TokensToday()
	if err != nil {
		t.Fatalf("TokensToday() error = %v", err)
	}
	if tokens != 200 {
		t.Errorf("tokens = %d, want 200", tokens)
	}
}

func TestTokensToday_ExcludesOlderDays(t *testing.T) {
	st := newTestStore(t)

	if err := st.RecordRun(Run{ID: "r-now", ChannelID: "D1", Source: "dm", State: "answered", PromptTokens: 10, CompletionTokens: 5}); err != nil {
		t.Fatal(err)
	}
	// Backdate one run to yesterday.
	if _, err := st.db.Exec(
		`UPDATE runs SET started_at = datetime('now', '-1 day') WHERE id = ?`, "r-now",
	); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordRun(Run{ID: "r-today", ChannelID: "D1", Source: "dm", State: "answered", PromptTokens: 40, CompletionTokens: 2}); err != nil {
		t.Fatal(err)
	}

	tokens, err := st.TokensToday()
	if err != nil {
		t.Fatalf("TokensToday() error = %v", err)
	}
	if tokens != 42 {
		t.Errorf("tokens = %d, want 42", tokens)
	}
}
