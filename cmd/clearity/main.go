// Command clearity runs the clarity-engine backend: a chat API that turns
// free-form messages into a living mind map and prioritized micro-tasks.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearity-app/clearity/internal/api"
	"github.com/clearity-app/clearity/internal/auth"
	"github.com/clearity-app/clearity/internal/config"
	"github.com/clearity-app/clearity/internal/health"
	"github.com/clearity-app/clearity/internal/llm"
	"github.com/clearity-app/clearity/internal/mapbuilder"
	"github.com/clearity-app/clearity/internal/memory"
	"github.com/clearity-app/clearity/internal/metrics"
	"github.com/clearity-app/clearity/internal/pipeline"
	"github.com/clearity-app/clearity/internal/prompts"
	"github.com/clearity-app/clearity/internal/reasoning"
	"github.com/clearity-app/clearity/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)
	logger.Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.HTTPPort).
		Bool("provider", cfg.ProviderEnabled()).
		Bool("auth", cfg.AuthEnabled()).
		Msg("starting clearity")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer st.Close()

	if !cfg.AuthEnabled() {
		if err := st.EnsureUser(context.Background(), "local"); err != nil {
			logger.Fatal().Err(err).Msg("ensure local user")
		}
	}

	promptSet, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load prompts")
	}

	var provider llm.Provider
	if cfg.ProviderEnabled() {
		provider = llm.NewOpenRouterProvider(cfg.OpenRouterAPIKey,
			llm.WithBaseURL(cfg.OpenRouterBaseURL),
			llm.WithModels(cfg.FastModel, cfg.DeepModel),
			llm.WithTimeout(cfg.ProviderTimeout),
			llm.WithLogger(logger),
		)
	} else {
		logger.Warn().Msg("no provider api key; all turns will run degraded")
	}

	m := metrics.New()
	builder := mapbuilder.New(provider, promptSet, logger)
	engine := reasoning.NewEngine(provider, promptSet,
		reasoning.Config{MaxTasksPerTurn: cfg.MaxTasksPerTurn}, logger)
	memories := memory.NewManager(st, cfg.MemoryLimit, cfg.SummaryCacheSize, logger)
	orch := pipeline.New(st, provider, builder, engine, memories, promptSet, m,
		pipeline.Config{HistoryWindow: cfg.HistoryWindow}, logger)

	var issuer *auth.TokenIssuer
	if cfg.AuthEnabled() {
		issuer = auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	}

	checker := health.NewChecker(logger)
	checker.Register("database", func(ctx context.Context) health.Status {
		if err := st.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("provider", func(ctx context.Context) health.Status {
		if provider == nil {
			return health.StatusDegraded
		}
		return health.StatusOK
	})

	server := api.New(cfg, st, orch, issuer, checker, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown incomplete")
		}
	}
	logger.Info().Msg("stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = zerolog.New(os.Stdout)
	if cfg.Environment == "development" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}
	return out.Level(level).With().Timestamp().Str("service", "clearity").Logger()
}
