// Package audit records every tool execution to an append-only JSONL trail.
// The trail answers, after the fact, what the assistant actually did: which
// tools ran, with what arguments, for which conversation, and whether they
// failed. It is off by default and enabled by setting auditPath in the config.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one recorded tool execution.
type Entry struct {
	Time       time.Time `json:"ts"`
	Channel    string    `json:"channel"`
	ThreadTS   string    `json:"thread,omitempty"`
	UserID     string    `json:"user,omitempty"`
	Tool       string    `json:"tool"`
	Arguments  string    `json:"args,omitempty"`
	IsError    bool      `json:"error,omitempty"`
	DurationMS int64     `json:"ms"`
}

// Logger writes entries to an append-only JSONL stream.
// Thread-safe: multiple goroutines can log concurrently.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time // injectable clock for testing
}

// NewLogger creates a logger that appends to the provided writer.
func NewLogger(w io.Writer) *Logger {
	return &Logger{
		w:   w,
		now: time.Now,
	}
}

// NewFileLogger creates a logger that appends to a JSONL file.
// Creates the file and parent directories if they don't exist.
func NewFileLogger(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return NewLogger(f), nil
}

// Log stamps the entry with the current time and writes it as one line.
func (l *Logger) Log(e Entry) error {
	e.Time = l.now()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.w.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	return nil
}

// ReadLog reads all entries from a JSONL file.
func ReadLog(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no trail yet
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	return ReadFrom(f)
}

// ReadFrom reads entries from a reader containing JSONL data.
func ReadFrom(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read audit log: %w", err)
	}

	return entries, nil
}

// FilterByTool returns only entries for the given tool.
func FilterByTool(entries []Entry, tool string) []Entry {
	var filtered []Entry
	for _, e := range entries {
		if e.Tool == tool {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// FilterByChannel returns only entries from the given channel.
func FilterByChannel(entries []Entry, channel string) []Entry {
	var filtered []Entry
	for _, e := range entries {
		if e.Channel == channel {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// Summary returns a count of entries by tool name.
func Summary(entries []Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Tool]++
	}
	return counts
}
