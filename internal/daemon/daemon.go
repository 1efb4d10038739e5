// Package daemon assembles and runs the assistant: Slack Socket Mode
// listener, tool registry, orchestration runner, run accounting, and the
// local debug dashboard. One process serves one workspace with one persona.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/attachehq/attache/internal/agent"
	"github.com/attachehq/attache/internal/audit"
	"github.com/attachehq/attache/internal/budget"
	"github.com/attachehq/attache/internal/catalog"
	"github.com/attachehq/attache/internal/config"
	"github.com/attachehq/attache/internal/exa"
	"github.com/attachehq/attache/internal/imgvec"
	"github.com/attachehq/attache/internal/llm"
	"github.com/attachehq/attache/internal/mem0"
	"github.com/attachehq/attache/internal/persona"
	"github.com/attachehq/attache/internal/qdrant"
	"github.com/attachehq/attache/internal/router"
	"github.com/attachehq/attache/internal/slackbot"
	"github.com/attachehq/attache/internal/store"
	"github.com/attachehq/attache/internal/tools"
)

const (
	// pruneInterval is how often old dedup marks are swept.
	pruneInterval = 24 * time.Hour
	// eventRetention is how long processed event IDs are kept. They only
	// need to outlive Slack's redelivery window; a week is generous.
	eventRetention = 7 * 24 * time.Hour
)

// Daemon is the long-running assistant process.
type Daemon struct {
	cfg     *config.Config
	st      *store.Store
	version string
	logger  *slog.Logger
	logs    *LogBuffer

	startTime time.Time

	mu            sync.Mutex
	webPort       int
	handler       *Handler
	conversations *router.Registry
	tokens        *budget.Tracker
	personaName   string
	model         string
}

// New creates a daemon. The store stays open across Run; the caller owns
// closing it on shutdown.
func New(cfg *config.Config, st *store.Store, version string, logger *slog.Logger, logs *LogBuffer) *Daemon {
	return &Daemon{
		cfg:       cfg,
		st:        st,
		version:   version,
		logger:    logger,
		logs:      logs,
		startTime: time.Now(),
	}
}

// Run connects to Slack and serves until the context is cancelled or the
// event loop fails.
func (d *Daemon) Run(ctx context.Context) error {
	p, ok := persona.Builtin(d.cfg.Persona)
	if !ok {
		return fmt.Errorf("unknown persona %q (built-in: %s)", d.cfg.Persona, strings.Join(persona.Names(), ", "))
	}
	model := p.Model
	if d.cfg.OpenRouter.Model != "" {
		model = d.cfg.OpenRouter.Model
	}

	llmOpts := []llm.Option{llm.WithLogger(d.logger)}
	if d.cfg.OpenRouter.BaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(d.cfg.OpenRouter.BaseURL))
	}
	if d.cfg.OpenRouter.EmbeddingModel != "" {
		llmOpts = append(llmOpts, llm.WithEmbeddingModel(d.cfg.OpenRouter.EmbeddingModel))
	}
	modelClient := llm.NewClient(d.cfg.OpenRouter.APIKey, llmOpts...)

	sb := slackbot.NewClient(d.cfg.Slack.BotToken, d.cfg.Slack.AppToken,
		slackbot.WithLogger(d.logger),
		slackbot.WithIdentity(slackbot.Identity{
			DisplayName: d.cfg.Identity.DisplayName,
			IconEmoji:   d.cfg.Identity.IconEmoji,
		}),
	)
	if err := sb.Identify(ctx); err != nil {
		return err
	}

	reg := d.buildRegistry(modelClient, sb)

	var dispatcher agent.ToolDispatcher = tools.NewFiltered(reg, p.Tools)
	if d.cfg.AuditPath != "" {
		trail, err := audit.NewFileLogger(d.cfg.AuditPath)
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		dispatcher = audit.NewDispatcher(dispatcher, trail, router.NewRedactor(), d.logger)
		d.logger.Info("tool audit trail enabled", "path", d.cfg.AuditPath)
	}

	runner := agent.NewRunner(modelClient, dispatcher, agent.Config{
		Model:        model,
		SystemPrompt: p.SystemPrompt,
	}, agent.WithLogger(d.logger))

	// Replay today's spend so a restart doesn't reset the budget.
	tracker := budget.NewTracker(d.cfg.Limits.MaxTokensPerDay)
	if tokens, err := d.st.TokensToday(); err != nil {
		d.logger.Warn("token replay failed, budget starts from zero", "error", err)
	} else {
		tracker.Seed(tokens)
	}

	handler := NewHandler(runner, sb, d.st, p, model,
		WithHandlerLogger(d.logger),
		WithRateLimit(d.cfg.Limits.MaxRunsPerHour),
		WithTokenBudget(tracker),
	)

	// One worker per conversation: messages within a thread process in
	// order, separate threads run in parallel, and dispatch never blocks
	// the event loop.
	conversations := router.NewRegistry(handler.HandleMessage, router.WithLogger(d.logger))

	d.mu.Lock()
	d.handler = handler
	d.conversations = conversations
	d.tokens = tracker
	d.personaName = p.Name
	d.model = model
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	sb.OnMessage(func(evt slackbot.MessageEvent) {
		conversations.Dispatch(gctx, evt)
	})
	sb.OnThreadStarted(func(evt slackbot.ThreadStartedEvent) {
		go handler.HandleThreadStarted(gctx, evt)
	})

	d.logger.Info("attache daemon starting",
		"version", d.version,
		"persona", p.Name,
		"model", model,
		"rate_limit", d.cfg.Limits.MaxRunsPerHour,
	)
	if d.cfg.Limits.MaxTokensPerDay > 0 {
		d.logger.Info("daily token budget active",
			"limit", d.cfg.Limits.MaxTokensPerDay,
			"used_today", tracker.Used(),
		)
	}

	g.Go(func() error { return sb.Listen(gctx) })
	g.Go(func() error { d.serveWeb(gctx); return nil })
	g.Go(func() error { d.pruneLoop(gctx); return nil })
	return g.Wait()
}

// buildRegistry registers every tool. Integrations missing from the config
// register with nil collaborators; those tools answer "not configured" when
// called, which keeps one registry shape across all deployments.
func (d *Daemon) buildRegistry(modelClient *llm.Client, sb *slackbot.Client) *tools.Registry {
	reg := tools.NewRegistry(d.logger)

	reg.MustRegister(tools.NewThreadHistoryTool(sb))
	reg.MustRegister(tools.NewChannelHistoryTool(sb))
	reg.MustRegister(tools.NewTitleTool(sb))

	var searcher tools.WebSearcher
	var researcher tools.CompanyResearcher
	if d.cfg.Exa.Configured() {
		exaClient := exa.NewClient(d.cfg.Exa.APIKey, exa.WithLogger(d.logger))
		searcher = exaClient
		researcher = exaClient
	}
	reg.MustRegister(tools.NewWebSearchTool(searcher))
	reg.MustRegister(tools.NewCompanyResearchTool(researcher))

	var index tools.VectorIndex
	if d.cfg.Qdrant.Configured() {
		qc := qdrant.NewClient(d.cfg.Qdrant.URL,
			qdrant.WithAPIKey(d.cfg.Qdrant.APIKey),
			qdrant.WithLogger(d.logger),
		)
		index = qc.Collection(d.cfg.Qdrant.Collection,
			qdrant.WithScoreThreshold(d.cfg.Qdrant.ScoreThreshold))
	}
	reg.MustRegister(tools.NewKnowledgeBaseTool(modelClient, index))

	var cat tools.ProductCatalog
	if d.cfg.Catalog.Configured() {
		cat = catalog.NewClient(d.cfg.Catalog.BaseURL, d.cfg.Catalog.APIKey,
			catalog.WithLogger(d.logger))
	}
	reg.MustRegister(tools.NewProductSearchTool(cat))
	reg.MustRegister(tools.NewProductDetailsTool(cat))
	reg.MustRegister(tools.NewInventoryTool(cat))

	var vectorizer tools.ImageVectorizer
	if d.cfg.Images.Configured() {
		vectorizer = imgvec.NewClient(d.cfg.Images.BaseURL, d.cfg.Images.APIKey,
			imgvec.WithLogger(d.logger))
	}
	reg.MustRegister(tools.NewImageTool(vectorizer, sb))

	var memories tools.MemoryStore
	if d.cfg.Mem0.Configured() {
		memOpts := []mem0.Option{mem0.WithLogger(d.logger)}
		if d.cfg.Mem0.BaseURL != "" {
			memOpts = append(memOpts, mem0.WithBaseURL(d.cfg.Mem0.BaseURL))
		}
		memories = mem0.NewClient(d.cfg.Mem0.APIKey, memOpts...)
	}
	reg.MustRegister(tools.NewSaveMemoryTool(memories))
	reg.MustRegister(tools.NewSearchMemoryTool(memories))
	reg.MustRegister(tools.NewListMemoriesTool(memories))
	reg.MustRegister(tools.NewDeleteMemoryTool(memories))

	return reg
}

// pruneLoop sweeps expired dedup marks daily.
func (d *Daemon) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.st.PruneEvents(time.Now().Add(-eventRetention))
			if err != nil {
				d.logger.Warn("event prune failed", "error", err)
				continue
			}
			if n > 0 {
				d.logger.Info("pruned processed events", "rows", n)
			}
		}
	}
}
