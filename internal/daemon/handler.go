package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/budget"
	"github.com/attachehq/attache/internal/persona"
	"github.com/attachehq/attache/internal/router"
	"github.com/attachehq/attache/internal/slackbot"
	"github.com/attachehq/attache/internal/store"
)

// statusTimeout bounds the fire-and-forget status updates in DM threads.
const statusTimeout = 10 * time.Second

// limiterBurst caps how many runs one channel can fire back-to-back before
// the hourly rate takes over.
const limiterBurst = 5

const (
	// modelFailureReply is posted when the model call itself fails. Tool
	// failures never reach this path; the loop absorbs those.
	modelFailureReply = "I hit a problem talking to the model and couldn't answer. Please try again in a moment."

	// emptyAnswerReply covers the rare run that exhausts its turn budget
	// without the model producing any text at all.
	emptyAnswerReply = "I ran out of steam before finishing that one. Try breaking the request into smaller steps."

	// rateLimitReply is posted instead of running the loop when a channel
	// exceeds its hourly budget.
	rateLimitReply = "I'm getting a lot of requests in this conversation right now. Give me a minute and try again."

	// budgetExhaustedReply is posted when the workspace has spent its daily
	// token allowance. The counter resets at UTC midnight.
	budgetExhaustedReply = "I've used up today's token budget for this workspace. I'll be back after midnight UTC."
)

// agentRunner is the orchestration loop the handler drives.
type agentRunner interface {
	Run(ctx context.Context, transcript []agent.Message, rc agent.RunContext) (*agent.Result, error)
}

// conversation is the slice of the Slack client the handler touches,
// narrowed so tests can fake it.
type conversation interface {
	BotUserID() string
	SendMessage(ctx context.Context, channel, threadTS, text string) error
	GetThreadMessages(ctx context.Context, channelID, threadTS string) ([]slackbot.Message, error)
	ReactProcessing(ctx context.Context, channel, messageTS string) error
	ReactDone(ctx context.Context, channel, messageTS string) error
	ReactFailed(ctx context.Context, channel, messageTS string) error
	SetStatus(ctx context.Context, channelID, threadTS, text string) error
	SetSuggestedPrompts(ctx context.Context, channelID, threadTS string, prompts []persona.Prompt) error
}

// accounting persists event dedup marks and finished-run records.
type accounting interface {
	MarkProcessed(eventID string) (bool, error)
	RecordRun(run store.Run) error
}

// Handler turns one inbound Slack message into one orchestration run and
// delivers the outcome: reply text, reactions, status lines, run record.
// It is safe for concurrent use; each message runs independently.
type Handler struct {
	runner   agentRunner
	slack    conversation
	store    accounting
	persona  persona.Persona
	model    string
	logger   *slog.Logger
	redactor *router.Redactor
	budget   *budget.Tracker

	active atomic.Int64

	// Per-channel token buckets, created on first use. A single loud
	// channel must not starve the rest of the workspace.
	limitMu     sync.Mutex
	limiters    map[string]*rate.Limiter
	runsPerHour int
}

// HandlerOption configures optional Handler parameters.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the structured logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithRateLimit caps runs per channel per hour. Zero or negative disables
// the limit.
func WithRateLimit(runsPerHour int) HandlerOption {
	return func(h *Handler) { h.runsPerHour = runsPerHour }
}

// WithTokenBudget gates runs behind the workspace-wide daily token
// ceiling. Nil disables the gate.
func WithTokenBudget(t *budget.Tracker) HandlerOption {
	return func(h *Handler) { h.budget = t }
}

// NewHandler creates a message handler for one persona.
func NewHandler(runner agentRunner, slack conversation, acct accounting, p persona.Persona, model string, opts ...HandlerOption) *Handler {
	h := &Handler{
		runner:   runner,
		slack:    slack,
		store:    acct,
		persona:  p,
		model:    model,
		logger:   slog.Default(),
		redactor: router.NewRedactor(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Active returns the number of runs currently in flight.
func (h *Handler) Active() int {
	return int(h.active.Load())
}

// HandleMessage processes one deduplicated inbound message end to end.
// It blocks for the duration of the run; callers dispatch it on its own
// goroutine so the event loop keeps draining.
func (h *Handler) HandleMessage(ctx context.Context, evt slackbot.MessageEvent) {
	log := h.logger.With("channel", evt.ChannelID, "thread", evt.ThreadTS, "user", evt.UserID)

	// Socket Mode redelivers events on slow acks. The in-memory cache in
	// the Slack client catches most of those; this mark catches redelivery
	// across restarts. A store error only disables the backstop.
	if fresh, err := h.store.MarkProcessed(evt.EventID); err != nil {
		log.Warn("event dedup check failed", "event_id", evt.EventID, "error", err)
	} else if !fresh {
		log.Info("event already processed, skipping", "event_id", evt.EventID)
		return
	}

	if !h.allow(evt.ChannelID) {
		log.Warn("channel over its hourly run budget", "runs_per_hour", h.runsPerHour)
		h.reply(ctx, evt, rateLimitReply)
		return
	}

	if h.budget != nil && !h.budget.Allow() {
		log.Warn("daily token budget exhausted", "used", h.budget.Used())
		h.reply(ctx, evt, budgetExhaustedReply)
		return
	}

	h.active.Add(1)
	defer h.active.Add(-1)

	if evt.Source == slackbot.SourceChannel {
		if err := h.slack.ReactProcessing(ctx, evt.ChannelID, evt.MessageTS); err != nil {
			log.Warn("processing reaction failed", "error", err)
		}
	}

	rc := agent.RunContext{
		ChannelID: evt.ChannelID,
		ThreadTS:  evt.ThreadTS,
		UserID:    evt.UserID,
		Kind:      kindOf(evt.Source),
	}
	// Status lines render under assistant threads only; channels get the
	// reaction treatment instead.
	if evt.Source == slackbot.SourceDM {
		rc.Status = h.statusFunc(evt.ChannelID, evt.ThreadTS)
	}

	transcript := h.buildTranscript(ctx, evt, log)

	started := time.Now()
	result, err := h.runner.Run(ctx, transcript, rc)
	h.record(evt, result, err, time.Since(started))

	if err == nil && h.budget != nil {
		// Crossing the limit mid-run is fine; the run already paid for
		// itself. The next message hits the gate instead.
		if berr := h.budget.Record(result.Usage.TotalTokens); berr != nil {
			log.Warn("daily token budget crossed", "error", berr)
		}
	}

	if err != nil {
		log.Error("run failed", "error", err)
		if evt.Source == slackbot.SourceChannel {
			_ = h.slack.ReactFailed(ctx, evt.ChannelID, evt.MessageTS)
		}
		h.reply(ctx, evt, modelFailureReply)
		return
	}

	// Thread history and tool output flow through the model verbatim, so a
	// credential pasted upstream can resurface in the answer. Scrub before
	// posting.
	text := strings.TrimSpace(h.redactor.Redact(result.Text))
	if text == "" {
		text = emptyAnswerReply
	}
	h.reply(ctx, evt, text)

	if evt.Source == slackbot.SourceChannel {
		if err := h.slack.ReactDone(ctx, evt.ChannelID, evt.MessageTS); err != nil {
			log.Warn("done reaction failed", "error", err)
		}
	}
}

// HandleThreadStarted seeds a fresh assistant thread with the persona's
// suggested prompts.
func (h *Handler) HandleThreadStarted(ctx context.Context, evt slackbot.ThreadStartedEvent) {
	err := h.slack.SetSuggestedPrompts(ctx, evt.ChannelID, evt.ThreadTS, h.persona.SuggestedPrompts)
	if err != nil {
		h.logger.Warn("suggested prompts failed",
			"channel", evt.ChannelID, "thread", evt.ThreadTS, "error", err)
	}
}

// buildTranscript fetches the thread history and converts it for the model.
// When history is unavailable the triggering message alone becomes the
// transcript; answering from less context beats not answering.
func (h *Handler) buildTranscript(ctx context.Context, evt slackbot.MessageEvent, log *slog.Logger) []agent.Message {
	history, err := h.slack.GetThreadMessages(ctx, evt.ChannelID, evt.ThreadTS)
	if err != nil {
		log.Warn("thread history unavailable, using the triggering message only", "error", err)
	}

	labelSpeakers := evt.Source == slackbot.SourceChannel
	transcript := slackbot.BuildTranscript(history, h.slack.BotUserID(), labelSpeakers)
	if len(transcript) > 0 {
		return transcript
	}

	text := evt.Text
	for _, f := range evt.Files {
		text += "\n" + slackbot.FileAnnotation(f)
	}
	return []agent.Message{{Role: "user", Content: strings.TrimSpace(text)}}
}

// statusFunc adapts SetStatus to the fire-and-forget shape tool execution
// expects. Updates run on a background context so a status post landing
// after the run finishes is still delivered rather than cancelled with it.
func (h *Handler) statusFunc(channelID, threadTS string) agent.StatusFunc {
	return func(text string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
			defer cancel()
			if err := h.slack.SetStatus(ctx, channelID, threadTS, text); err != nil {
				h.logger.Debug("status update failed",
					"channel", channelID, "thread", threadTS, "error", err)
			}
		}()
	}
}

func (h *Handler) allow(channelID string) bool {
	if h.runsPerHour <= 0 {
		return true
	}
	h.limitMu.Lock()
	defer h.limitMu.Unlock()
	lim, ok := h.limiters[channelID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Hour/time.Duration(h.runsPerHour)), min(limiterBurst, h.runsPerHour))
		h.limiters[channelID] = lim
	}
	return lim.Allow()
}

func (h *Handler) reply(ctx context.Context, evt slackbot.MessageEvent, text string) {
	if err := h.slack.SendMessage(ctx, evt.ChannelID, evt.ThreadTS, text); err != nil {
		h.logger.Error("reply delivery failed",
			"channel", evt.ChannelID, "thread", evt.ThreadTS, "error", err)
	}
}

// record persists the run outcome for the dashboard. Failures here are
// logged and swallowed; accounting never breaks the conversation.
func (h *Handler) record(evt slackbot.MessageEvent, result *agent.Result, runErr error, elapsed time.Duration) {
	run := store.Run{
		ID:         uuid.New().String(),
		EventID:    evt.EventID,
		ChannelID:  evt.ChannelID,
		ThreadTS:   evt.ThreadTS,
		UserID:     evt.UserID,
		Source:     string(evt.Source),
		Persona:    h.persona.Name,
		Model:      h.model,
		DurationMS: elapsed.Milliseconds(),
	}
	if result != nil {
		run.State = string(result.State)
		run.Turns = result.TurnsUsed
		run.ToolCalls = result.ToolCalls
		run.PromptTokens = result.Usage.PromptTokens
		run.CompletionTokens = result.Usage.CompletionTokens
	}
	if runErr != nil {
		run.State = "failed"
		run.Error = runErr.Error()
	}
	if err := h.store.RecordRun(run); err != nil {
		h.logger.Warn("run not recorded", "run_id", run.ID, "error", err)
	}
}

func kindOf(src slackbot.Source) agent.Kind {
	if src == slackbot.SourceChannel {
		return agent.KindChannel
	}
	return agent.KindDirectMessage
}
