package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ResearchRadar/internal/cluster"
	"ResearchRadar/internal/config"
	"ResearchRadar/internal/extract"
	"ResearchRadar/internal/infrastructure/llm"
	"ResearchRadar/internal/infrastructure/ml"
	"ResearchRadar/internal/infrastructure/scheduler"
	"ResearchRadar/internal/infrastructure/searchapi"
	"ResearchRadar/internal/infrastructure/storage"
	"ResearchRadar/internal/infrastructure/telegram"
	"ResearchRadar/internal/logging"
	"ResearchRadar/internal/ports"
	"ResearchRadar/internal/research"
	"ResearchRadar/internal/retry"
	"ResearchRadar/internal/schedule"
	"ResearchRadar/internal/search"
	"ResearchRadar/internal/tasks"
)

// Application wires configuration into the research engine and the
// scheduling controller, and owns their lifecycle.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	scheduler  ports.Scheduler
	controller *schedule.Controller
}

// New builds a runnable application instance. The caller is expected to
// have validated cfg already.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	pool, err := storage.NewPool(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	projects := storage.NewProjectRepository(pool)
	findings := storage.NewFindingRepository(pool)
	logs := storage.NewDeliveryLogRepository(pool)
	histories := storage.NewHistoryRepository(pool)
	notifications := storage.NewNotificationRepository(pool)

	searcher := search.NewClient(
		searchapi.NewClient(cfg.Search.Endpoint, cfg.Search.APIKey),
		search.Options{
			MinInterval:    cfg.Search.MinInterval(),
			MaxAttempts:    cfg.Search.MaxAttempts,
			BaseDelay:      2 * time.Second,
			RateLimitDelay: 10 * time.Second,
			Cooldown:       5 * time.Second,
		},
		baseLogger.With("component", "search"),
	)

	extractorOpts := extract.DefaultOptions()
	if cfg.Extractor.TimeoutSeconds > 0 {
		extractorOpts.Timeout = time.Duration(cfg.Extractor.TimeoutSeconds) * time.Second
	}
	if cfg.Extractor.Concurrency > 0 {
		extractorOpts.Concurrency = cfg.Extractor.Concurrency
	}
	if cfg.Extractor.SnippetWords > 0 {
		extractorOpts.SnippetWords = cfg.Extractor.SnippetWords
	}
	extractor := extract.New(&http.Client{}, extractorOpts, baseLogger.With("component", "extract"))

	var embedClient tasks.EmbeddingClient
	if cfg.ML.InferenceURL != "" {
		embedClient = ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey)
	}
	provider := tasks.NewProvider(
		llm.NewClient(cfg.LLM),
		embedClient,
		retry.DefaultConfig(),
		baseLogger.With("component", "llm"),
	)

	// Clustering only runs when the provider carries the embedding
	// capability; without it the orchestrator compiles flat reports.
	var clusterer research.FindingClusterer
	if embedder, ok := provider.(ports.Embedder); ok {
		clusterer = cluster.New(embedder, cfg.Research.SimilarityThreshold, baseLogger.With("component", "cluster"))
	}

	orchestrator := research.New(
		research.Config{
			MaxIterations: cfg.Research.MaxIterations,
			CandidateCap:  cfg.Research.CandidateCap,
		},
		research.Deps{
			Projects:  projects,
			Findings:  findings,
			Logs:      logs,
			Histories: histories,
			Search:    searcher,
			Extractor: extractor,
			LLM:       provider,
			Clusterer: clusterer,
			Logger:    baseLogger.With("component", "research"),
		},
	)

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	controller := schedule.New(
		schedule.Config{LookAhead: cfg.Scheduler.LookAhead()},
		projects, logs, notifications, notifier, orchestrator,
		baseLogger.With("component", "controller"),
	)

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		pool:       pool,
		scheduler:  scheduler.NewTicker(cfg.Scheduler.TickInterval(), cfg.Scheduler.RunOnStartup),
		controller: controller,
	}, nil
}

// Run starts the controller tick loop and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	if !a.cfg.Scheduler.Enabled {
		a.logger.Warn("scheduler disabled, nothing to do")
		return nil
	}

	job := func(now time.Time) {
		a.controller.Tick(ctx, now)
	}
	if err := a.scheduler.Start(ctx, job); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("controller started",
		"tick", a.cfg.Scheduler.TickInterval().String(),
		"look_ahead", a.cfg.Scheduler.LookAhead().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// Close releases held resources.
func (a *Application) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
