package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/attachehq/attache/internal/agent"
)

// Scrubber removes credentials from argument payloads before they are
// written to the trail. A nil scrubber stores arguments verbatim.
type Scrubber interface {
	Redact(text string) string
}

// Dispatcher wraps a tool dispatcher and records every execution. The
// wrapped dispatcher does all the real work; failures to write the trail
// are logged and never affect the tool result.
type Dispatcher struct {
	next   agent.ToolDispatcher
	trail  *Logger
	scrub  Scrubber
	logger *slog.Logger
}

// NewDispatcher wraps next so that each Dispatch lands in the trail.
func NewDispatcher(next agent.ToolDispatcher, trail *Logger, scrub Scrubber, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		next:   next,
		trail:  trail,
		scrub:  scrub,
		logger: logger,
	}
}

// Definitions passes through to the wrapped dispatcher.
func (d *Dispatcher) Definitions(kind agent.Kind) []agent.ToolDefinition {
	return d.next.Definitions(kind)
}

// Dispatch executes the call through the wrapped dispatcher and records
// the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, call agent.ToolCall, rc agent.RunContext) agent.ToolResult {
	start := time.Now()
	res := d.next.Dispatch(ctx, call, rc)

	args := call.Arguments
	if d.scrub != nil {
		args = d.scrub.Redact(args)
	}

	err := d.trail.Log(Entry{
		Channel:    rc.ChannelID,
		ThreadTS:   rc.ThreadTS,
		UserID:     rc.UserID,
		Tool:       call.Name,
		Arguments:  args,
		IsError:    res.IsError,
		DurationMS: time.Since(start).Milliseconds(),
	})
	if err != nil {
		d.logger.Warn("audit write failed", "tool", call.Name, "error", err)
	}

	return res
}
