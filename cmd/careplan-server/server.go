package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/careplan/careplan/internal/config"
	"github.com/careplan/careplan/internal/domain/careplan"
	"github.com/careplan/careplan/internal/platform/db"
	"github.com/careplan/careplan/internal/platform/llm"
	"github.com/careplan/careplan/internal/platform/middleware"
)

// store is the opened care plan repository and the handles backing it.
type store struct {
	repo  careplan.CarePlanRepository
	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

func (s *store) close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlDB != nil {
		s.sqlDB.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")
		return &store{repo: careplan.NewCarePlanRepoSQLite(sqlDB), sqlDB: sqlDB}, nil
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &store{repo: careplan.NewCarePlanRepoPG(pool), pool: pool}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newGenerator(cfg *config.Config) (llm.Generator, error) {
	opts := llm.Options{APIKey: cfg.AnthropicAPIKey, BaseURL: cfg.AnthropicBaseURL}
	if cfg.GenerationProvider == config.ProviderOpenAI {
		opts = llm.Options{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL}
	}
	return llm.New(cfg.GenerationProvider, opts)
}

func newService(cfg *config.Config, logger zerolog.Logger, repo careplan.CarePlanRepository, gen llm.Generator) *careplan.Service {
	svc := careplan.NewService(repo, gen, careplan.GenerationSettings{
		Model:     cfg.GenerationModel,
		MaxTokens: cfg.GenerationMaxTokens,
	})
	svc.SetLogger(logger)
	return svc
}

// newServer assembles the echo instance with middleware and routes.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *careplan.Service, health echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Pre(echomw.RemoveTrailingSlash())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderXRequestID},
		ExposeHeaders: []string{echo.HeaderContentDisposition, echo.HeaderXRequestID, "X-Total-Count", "Link"},
	}))

	e.GET("/health", health)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api := e.Group("/api", middleware.RateLimit(rateLimitCfg))

	careplan.NewHandler(svc, cfg.ListMaxLimit).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer st.close()

	gen, err := newGenerator(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generator")
	}
	logger.Info().
		Str("provider", cfg.GenerationProvider).
		Str("model", cfg.GenerationModel).
		Msg("generation service configured")

	svc := newService(cfg, logger, st.repo, gen)
	e := newServer(cfg, logger, svc, db.HealthHandler(cfg.StoreDriver, st.repo, st.pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
