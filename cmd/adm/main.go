// Package main provides the main entry point for the flashquiz admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flashquiz/cmd/adm/commands"
	"flashquiz/internal/config"
	"flashquiz/internal/database"
	"flashquiz/internal/observability"
	"flashquiz/internal/services"
)

func main() {
	ctx := context.Background()

	// Set default config file if not already set
	if os.Getenv("FLASHQUIZ_CONFIG_FILE") == "" {
		defaultPaths := []string{
			"config.yaml",       // Current directory
			"../config.yaml",    // From cmd/adm/
			"../../config.yaml", // From cmd/adm/ during development
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("FLASHQUIZ_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set FLASHQUIZ_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override log level for admin tool
	cfg.Server.LogLevel = "error"

	// Disable all OpenTelemetry features for the admin CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "flashquiz-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if tp != nil {
			if err := tp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error(), "provider": "tracer"})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error(), "provider": "meter"})
			}
		}
	}()

	// Connect without migrating; the `db migrate` command applies migrations
	// explicitly.
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_path": cfg.Database.Path})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error(), "db_path": cfg.Database.Path})
		}
	}()

	phraseService := services.NewPhraseService(db, cfg, logger, nil)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Flashquiz Administration Tool",
		Long: `Flashquiz Administration Tool

CLI tool for administering the flashquiz backend.
Provides commands for schema management, bulk word-list import, and catalog statistics.`,

		Run: func(cmd *cobra.Command, _ []string) {
			// Show help if no subcommand provided
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, db, cfg, logger))
	rootCmd.AddCommand(commands.ImportCommand(phraseService, logger))
	rootCmd.AddCommand(commands.StatsCommand(phraseService, logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
