// Package main provides the main entry point for the flashquiz backend server.
// It sets up the database, local state store, practice engine, and API routes.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"flashquiz/internal/config"
	"flashquiz/internal/database"
	"flashquiz/internal/handlers"
	"flashquiz/internal/localstate"
	"flashquiz/internal/observability"
	"flashquiz/internal/practice"
	"flashquiz/internal/services"
	contextutils "flashquiz/internal/utils"
)

// Application encapsulates the main application logic and can be tested
type Application struct {
	router   *gin.Engine
	db       *sql.DB
	registry *practice.Registry
	logger   *observability.Logger
}

// NewApplication wires the full service stack and builds the router.
func NewApplication(cfg *config.Config, logger *observability.Logger) (*Application, error) {
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to initialize database")
	}

	phraseService := services.NewPhraseService(db, cfg, logger, nil)

	// The explanation service is optional; without it the explain action
	// reports that explanations are disabled.
	var explainer practice.Explainer
	if cfg.Explanation.Enabled {
		explainer = services.NewExplanationService(db, cfg, logger)
	}

	store := localstate.NewStore(cfg.LocalState.Path, logger)
	ledger := practice.NewLedger(store, &cfg.Practice, logger)
	stats := practice.NewStatsTracker(store, logger)
	xp := practice.NewXPCounter(store, logger)
	selector := practice.NewSelector(phraseService, ledger, &cfg.Practice, logger, rand.New(rand.NewSource(time.Now().UnixNano())), nil)
	scorer := practice.NewScorer(&cfg.Practice)
	registry := practice.NewRegistry(selector, scorer, ledger, stats, xp, explainer, &cfg.Practice, logger)

	router := handlers.NewRouter(cfg, phraseService, registry, ledger, stats, xp, logger)

	return &Application{
		router:   router,
		db:       db,
		registry: registry,
		logger:   logger,
	}, nil
}

// Run starts the application and returns an error if it fails to start
func (a *Application) Run(ctx context.Context, port string) error {
	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := a.router.Run(":" + port); err != nil {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		return nil // Context cancelled, graceful shutdown
	case err := <-serverErr:
		return contextutils.WrapError(err, "server failed")
	}
}

// Shutdown gracefully shuts down the application
func (a *Application) Shutdown(ctx context.Context) error {
	a.registry.CloseAll()
	if err := a.db.Close(); err != nil {
		return contextutils.WrapError(err, "failed to close database")
	}
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "flashquiz-backend")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	logger.Info(ctx, "Starting flashquiz backend service", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Server.LogLevel,
	})

	// Create application instance
	app, err := NewApplication(cfg, logger)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err, nil)
		os.Exit(1)
	}

	// Start application in a goroutine
	appErr := make(chan error, 1)
	go func() {
		if err := app.Run(ctx, cfg.Server.Port); err != nil {
			appErr <- err
		}
	}()

	// Wait for shutdown signal or application error
	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully", nil)
	case err := <-appErr:
		logger.Error(ctx, "Application failed", err, nil)
		os.Exit(1)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during application shutdown", err, nil)
		os.Exit(1)
	}

	logger.Info(ctx, "Shutdown completed successfully", nil)
}
