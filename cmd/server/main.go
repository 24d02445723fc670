/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the contract billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env vars / app.env)
  2. Initialize zerolog
  3. Open SQLite store and evidence directory
  4. Load tier schedule (file override or built-in default)
  5. Wire the billing service, handler and router
  6. Start server with graceful shutdown

CONFIGURATION:
  HTTP_HOST, HTTP_PORT            Bind address (default 0.0.0.0:7080)
  DB_PATH                         SQLite path (default ./data/billing.db)
  EVIDENCE_DIR                    Evidence directory (default ./data/evidence)
  JWT_ACCESS_SECRET               Required; signs/validates bearer tokens
  INVOICE_RETRY_MAX_ATTEMPTS      Default 3
  INVOICE_RETRY_BACKOFF_STEP      Default 50ms
  TIER_SCHEDULE_PATH              Optional JSON schedule override

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/evidence"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Storage
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to open database")
	}
	defer store.Close()

	ev, err := evidence.NewLocal(cfg.Evidence.Dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Evidence.Dir).Msg("failed to open evidence store")
	}

	// Tier schedule: optional file override, otherwise the built-in brackets.
	schedule := billing.DefaultTierSchedule()
	if cfg.Billing.SchedulePath != "" {
		raw, err := os.ReadFile(cfg.Billing.SchedulePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Billing.SchedulePath).Msg("failed to read tier schedule")
		}
		schedule, err = factory.NewScheduleFactory().ParseSchedule(string(raw))
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid tier schedule")
		}
	}

	// Engine
	svc := billing.NewService(store, ev, store, logger)
	svc.Audit = store
	svc.Schedule = schedule
	svc.Retry = billing.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     billing.LinearBackoff(cfg.Retry.BackoffStep),
		Retryable:   billing.IsRetryable,
	}

	// HTTP
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler, cfg.Auth.AccessSecret)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
