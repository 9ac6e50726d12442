// Package commands provides CLI commands for the admin tool
package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"flashquiz/internal/config"
	"flashquiz/internal/database"
	"flashquiz/internal/observability"
)

// DatabaseCommands returns the schema management commands
func DatabaseCommands(dbManager *database.Manager, db *sql.DB, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database schema management commands",
		Long: `Database schema management commands for the flashquiz backend.

Available commands:
  migrate   - Apply pending schema migrations
  reset     - Drop and re-create the schema (destroys all catalog data)`,
	}

	dbCmd.AddCommand(migrateCmd(dbManager, db, cfg, logger))
	dbCmd.AddCommand(resetCmd(dbManager, db, cfg, logger))

	return dbCmd
}

func migrateCmd(dbManager *database.Manager, db *sql.DB, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := cmdContext()

			logger.Info(ctx, "Applying migrations", map[string]interface{}{"db_path": cfg.Database.Path})
			if err := dbManager.RunMigrations(db, cfg.Database.Path); err != nil {
				return err
			}
			fmt.Println("Migrations applied")
			return nil
		},
	}
}

func resetCmd(dbManager *database.Manager, db *sql.DB, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-create the schema",
		Long:  `Roll every migration back and re-apply it. Destroys all catalog data.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := cmdContext()

			if !confirmed {
				fmt.Println("This destroys all catalog data. Re-run with --yes to confirm.")
				return nil
			}

			logger.Info(ctx, "Resetting database", map[string]interface{}{"db_path": cfg.Database.Path})
			if err := dbManager.ResetDB(db, cfg.Database.Path); err != nil {
				return err
			}
			fmt.Println("Database reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the destructive reset")

	return cmd
}
