package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// LogEntry is one rendered log record kept for the dashboard.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// LogBuffer retains the most recent log records in memory and fans new ones
// out to live subscribers. It backs the dashboard's log views.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	maxSize int

	subMu sync.Mutex
	subs  map[chan LogEntry]struct{}
}

// NewLogBuffer creates a buffer that keeps up to maxSize entries.
func NewLogBuffer(maxSize int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
		subs:    make(map[chan LogEntry]struct{}),
	}
}

func (b *LogBuffer) add(entry LogEntry) {
	b.mu.Lock()
	if len(b.entries) >= b.maxSize {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, entry)
	b.mu.Unlock()

	// Sends only happen while the channel is still in the map, so a
	// subscriber closing via Unsubscribe can never race a send.
	b.subMu.Lock()
	for ch := range b.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	b.subMu.Unlock()
}

// Entries returns a copy of all stored entries, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]LogEntry, len(b.entries))
	copy(cp, b.entries)
	return cp
}

// Subscribe returns a channel that receives new entries in real time.
// Slow consumers miss entries rather than block logging.
func (b *LogBuffer) Subscribe() chan LogEntry {
	ch := make(chan LogEntry, 64)
	b.subMu.Lock()
	b.subs[ch] = struct{}{}
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *LogBuffer) Unsubscribe(ch chan LogEntry) {
	b.subMu.Lock()
	delete(b.subs, ch)
	b.subMu.Unlock()
	close(ch)
}

func (b *LogBuffer) subscriberCount() int {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return len(b.subs)
}

// bufferHandler tees slog records into a LogBuffer on their way to the
// terminal handler. Bound attrs are carried along so records logged through
// sub-loggers keep their context in the dashboard.
type bufferHandler struct {
	next  slog.Handler
	buf   *LogBuffer
	attrs []slog.Attr
}

func (h *bufferHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *bufferHandler) Handle(ctx context.Context, rec slog.Record) error {
	h.buf.add(LogEntry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: h.formatRecord(rec),
	})
	return h.next.Handle(ctx, rec)
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	bound = append(bound, h.attrs...)
	bound = append(bound, attrs...)
	return &bufferHandler{next: h.next.WithAttrs(attrs), buf: h.buf, attrs: bound}
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	return &bufferHandler{next: h.next.WithGroup(name), buf: h.buf, attrs: h.attrs}
}

func (h *bufferHandler) formatRecord(rec slog.Record) string {
	var sb strings.Builder
	sb.WriteString(rec.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	return sb.String()
}

// NewLogger builds the daemon's logger: human-readable text on a terminal,
// JSON when stderr is redirected (systemd, launchd, pipes). Every record also
// lands in the returned LogBuffer, which feeds the dashboard.
func NewLogger(level slog.Level, bufferSize int) (*slog.Logger, *LogBuffer) {
	opts := &slog.HandlerOptions{Level: level}

	var next slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		next = slog.NewTextHandler(os.Stderr, opts)
	} else {
		next = slog.NewJSONHandler(os.Stderr, opts)
	}

	buf := NewLogBuffer(bufferSize)
	return slog.New(&bufferHandler{next: next, buf: buf}), buf
}
