package agent

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultMaxTurns is the model-call ceiling applied when Config.MaxTurns is
// unset. Tool-calling loops with a capable model can in principle run forever
// (search, then search again); a small fixed bound guarantees termination at
// the cost of occasionally truncating a legitimately multi-step task.
const DefaultMaxTurns = 5

// Runner executes the orchestration loop for one persona. The same struct
// powers every persona — different config, same loop.
type Runner struct {
	provider ModelProvider
	tools    ToolDispatcher
	config   Config
	logger   *slog.Logger
}

// RunnerOption configures optional Runner parameters.
type RunnerOption func(*Runner)

// WithLogger sets the structured logger for the runner.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a runner with the given dependencies.
func NewRunner(provider ModelProvider, tools ToolDispatcher, config Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		provider: provider,
		tools:    tools,
		config:   config,
		logger:   slog.Default(),
	}
	if r.config.MaxTurns <= 0 {
		r.config.MaxTurns = DefaultMaxTurns
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives the loop until one of:
//   - the model returns a text response with no tool calls (StateAnswered)
//   - the turn cap is reached (StateBudgetExhausted, last text returned as-is)
//   - the context is cancelled or a model call fails (error)
//
// The turn counter is checked BEFORE each model call, never after, so the
// number of model calls can never exceed the cap.
//
// Tool failures never surface as errors here: the dispatcher converts them
// into error ToolResults and the model decides what to do next. Only a model
// call failing is fatal — without the model the run cannot proceed at all,
// and the caller owns the user-visible fallback.
//
// Tool calls within a turn execute sequentially, in the order the model
// requested them, so the transcript ordering is deterministic.
func (r *Runner) Run(ctx context.Context, transcript []Message, rc RunContext) (*Result, error) {
	log := r.logger.With("channel", rc.ChannelID, "thread", rc.ThreadTS, "kind", rc.Kind)

	messages := make([]Message, 0, len(transcript)+1)
	if r.config.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: r.config.SystemPrompt})
	}
	messages = append(messages, transcript...)

	result := &Result{State: StateBudgetExhausted}

	for turn := 0; turn < r.config.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			log.Info("run cancelled", "turn", turn)
			return result, err
		}

		// Recomputed each turn; the enabled set depends on conversation kind.
		defs := r.tools.Definitions(rc.Kind)

		log.Info("model call", "turn", turn, "messages", len(messages), "tools", len(defs))

		resp, err := r.provider.ChatCompletion(ctx, ChatRequest{
			Model:       r.config.Model,
			Messages:    messages,
			Tools:       defs,
			Temperature: r.config.Temperature,
		})
		if err != nil {
			return result, fmt.Errorf("model call failed on turn %d: %w", turn, err)
		}

		result.TurnsUsed = turn + 1
		result.Usage.Add(resp.Usage)
		messages = append(messages, resp.Message)

		// Keep whatever text came with this turn; it becomes the answer if
		// the budget runs out before a tool-free response arrives.
		result.Text = resp.Message.Content

		if len(resp.Message.ToolCalls) == 0 {
			result.State = StateAnswered
			log.Info("answered", "turns", result.TurnsUsed, "tool_calls", result.ToolCalls)
			return result, nil
		}

		for _, call := range resp.Message.ToolCalls {
			log.Info("tool call", "turn", turn, "tool", call.Name, "call_id", call.ID)
			tr := r.tools.Dispatch(ctx, call, rc)
			result.ToolCalls++
			messages = append(messages, Message{
				Role:       "tool",
				Content:    tr.Content,
				ToolCallID: tr.ToolCallID,
			})
		}
	}

	log.Warn("turn budget exhausted", "max_turns", r.config.MaxTurns, "tool_calls", result.ToolCalls)
	return result, nil
}
