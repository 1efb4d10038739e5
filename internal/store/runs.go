package store

// Runs are the per-request usage ledger: one row per agent run with its
// outcome, turn and token spend, and latency. The debug dashboard reads
// these; nothing in the run path ever does.

// Run is one recorded agent run.
type Run struct {
	ID               string `json:"id"`
	EventID          string `json:"event_id"`
	ChannelID        string `json:"channel_id"`
	ThreadTS         string `json:"thread_ts"`
	UserID           string `json:"user_id"`
	Source           string `json:"source"`
	Persona          string `json:"persona"`
	Model            string `json:"model"`
	State            string `json:"state"`
	Turns            int    `json:"turns"`
	ToolCalls        int    `json:"tool_calls"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	DurationMS       int64  `json:"duration_ms"`
	Error            string `json:"error,omitempty"`
	StartedAt        string `json:"started_at"`
}

// Stats aggregates the runs table for the dashboard status endpoint.
type Stats struct {
	TotalRuns      int `json:"total_runs"`
	Answered       int `json:"answered"`
	Failed         int `json:"failed"`
	TotalToolCalls int `json:"total_tool_calls"`
	TotalTokens    int `json:"total_tokens"`
	AvgDurationMS  int `json:"avg_duration_ms"`
}

func (s *Store) initRuns() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id                TEXT PRIMARY KEY,
			event_id          TEXT NOT NULL DEFAULT '',
			channel_id        TEXT NOT NULL,
			thread_ts         TEXT NOT NULL DEFAULT '',
			user_id           TEXT NOT NULL DEFAULT '',
			source            TEXT NOT NULL,
			persona           TEXT NOT NULL DEFAULT '',
			model             TEXT NOT NULL DEFAULT '',
			state             TEXT NOT NULL,
			turns             INTEGER NOT NULL DEFAULT 0,
			tool_calls        INTEGER NOT NULL DEFAULT 0,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			duration_ms       INTEGER NOT NULL DEFAULT 0,
			error             TEXT NOT NULL DEFAULT '',
			started_at        TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

// RecordRun inserts one finished run. Recording failures must not fail
// the request, so callers log and move on.
func (s *Store) RecordRun(run Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, event_id, channel_id, thread_ts, user_id, source, persona, model, state,
			turns, tool_calls, prompt_tokens, completion_tokens, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.EventID, run.ChannelID, run.ThreadTS, run.UserID, run.Source, run.Persona,
		run.Model, run.State, run.Turns, run.ToolCalls, run.PromptTokens, run.CompletionTokens,
		run.DurationMS, run.Error,
	)
	return err
}

// RecentRuns returns the newest runs first, at most limit rows.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, event_id, channel_id, thread_ts, user_id, source, persona, model, state,
			turns, tool_calls, prompt_tokens, completion_tokens, duration_ms, error, started_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.EventID, &r.ChannelID, &r.ThreadTS, &r.UserID, &r.Source,
			&r.Persona, &r.Model, &r.State, &r.Turns, &r.ToolCalls, &r.PromptTokens,
			&r.CompletionTokens, &r.DurationMS, &r.Error, &r.StartedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TokensToday sums the tokens spent by runs started today (UTC). Used
// to seed the daily budget tracker after a restart.
func (s *Store) TokensToday() (int, error) {
	var tokens int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(prompt_tokens + completion_tokens), 0)
		 FROM runs WHERE started_at >= date('now')`,
	).Scan(&tokens)
	return tokens, err
}

// RunStats aggregates all recorded runs.
func (s *Store) RunStats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN state = 'answered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tool_calls), 0),
			COALESCE(SUM(prompt_tokens + completion_tokens), 0),
			COALESCE(CAST(AVG(duration_ms) AS INTEGER), 0)
		 FROM runs`,
	).Scan(&st.TotalRuns, &st.Answered, &st.Failed, &st.TotalToolCalls, &st.TotalTokens, &st.AvgDurationMS)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}
