package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mentora-ai/mentora/db"
	"github.com/mentora-ai/mentora/internal/admission"
	"github.com/mentora-ai/mentora/internal/chat"
	"github.com/mentora-ai/mentora/internal/completion"
	"github.com/mentora-ai/mentora/internal/config"
	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/observability"
	"github.com/mentora-ai/mentora/internal/quota"
	"github.com/mentora-ai/mentora/internal/ratelimit"
	"github.com/mentora-ai/mentora/internal/review"
	"github.com/mentora-ai/mentora/internal/user"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = observability.Setup(ctx, cfg)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Users = user.NewStore(pool, logger)
	a.Ledger = quota.NewLedger(
		quota.NewPostgresStore(pool, logger),
		quota.Limits{
			BasicPerMonth: cfg.BasicMessagesPerMonth,
			VIPPerMonth:   cfg.VIPMessagesPerMonth,
			TrialDays:     cfg.TrialPeriodDays,
		},
		logger,
	)

	limiter := ratelimit.New(ratelimit.Config{
		PerMinute:     cfg.RateLimitPerMinute,
		PerHour:       cfg.RateLimitPerHour,
		VIPMultiplier: cfg.VIPRateMultiplier,
	}, logger)

	a.Knowledge = knowledge.NewStore(pool, embedder, logger)

	completer := completion.New(g, completion.Config{
		ModelName:             cfg.FullModelName(),
		Temperature:           cfg.Temperature,
		MaxTokens:             cfg.MaxTokens,
		MaxHistory:            cfg.MaxHistory,
		CostMicrosPer1KTokens: cfg.CostMicrosPer1KTokens,
	}, logger)

	a.Orchestrator = admission.New(
		a.Users,
		limiter,
		a.Ledger,
		a.Knowledge,
		completer,
		review.NewSink(pool, logger),
		chat.NewHistoryStore(pool, logger),
		nil, // default keyword classifier
		admission.Config{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			TopK:                cfg.RetrievalTopK,
			DefaultNamespace:    cfg.DefaultNamespace,
			HistoryTurns:        cfg.MaxHistory,
		},
		logger,
	)

	return a, nil
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the Google AI plugin.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}

	slog.Info("initialized Genkit", "provider", cfg.Provider, "model", cfg.ModelName)
	return g, nil
}

// provideEmbedder looks up the embedder registered by the Google AI plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}
