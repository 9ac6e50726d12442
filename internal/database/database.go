// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"flashquiz/internal/config"
	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"

	// Import SQLite driver for database/sql
	_ "github.com/mattn/go-sqlite3"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// OpenTelemetry SQL instrumentation
	"go.nhat.io/otelsql"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Manager handles database operations with proper logging
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// DefaultDatabaseConfig returns the default database configuration
func DefaultDatabaseConfig() config.DatabaseConfig {
	cfg := config.DatabaseConfig{
		Path:            config.DefaultDatabasePath,
		MaxOpenConns:    1, // sqlite: a single writer avoids SQLITE_BUSY under load
		MaxIdleConns:    1,
		ConnMaxLifetime: config.DatabaseConnMaxLifetime,
	}

	// Check for TEST_DATABASE_PATH first (for tests)
	if testPath := os.Getenv("TEST_DATABASE_PATH"); testPath != "" {
		cfg.Path = testPath
	}

	return cfg
}

// InitDB initializes and returns a database connection with migrations
func (dm *Manager) InitDB(databasePath string) (result0 *sql.DB, err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "InitDB",
		attribute.String("db.path", databasePath),
		attribute.String("db.system", "sqlite"),
		attribute.Bool("migrations.enabled", true),
	)
	defer observability.FinishSpan(span, &err)
	cfg := DefaultDatabaseConfig()
	cfg.Path = databasePath
	return dm.InitDBWithConfig(cfg)
}

// InitDBWithConfig initializes and returns a database connection with migrations and custom config
func (dm *Manager) InitDBWithConfig(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	db, err := dm.InitDBWithoutMigrations(cfg)
	if err != nil {
		return nil, err
	}

	if err := dm.RunMigrations(db, cfg.Path); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Warn(context.Background(), "Failed to close database after migration failure", map[string]interface{}{"error": closeErr.Error()})
		}
		return nil, err
	}

	return db, nil
}

// InitDBWithoutMigrations initializes and returns a database connection without running migrations
func (dm *Manager) InitDBWithoutMigrations(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithoutMigrations",
		attribute.String("db.path", cfg.Path),
	)
	defer observability.FinishSpan(span, &err)

	// Register OpenTelemetry SQL driver once per process and reuse the name
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("sqlite3",
			otelsql.WithDatabaseName(cfg.Path),
			otelsql.TraceQueryWithArgs(),
			otelsql.WithSystem(semconv.DBSystemSqlite),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", cfg.Path)
	db, err := sql.Open(otelDriverNameCache, dsn)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open database connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapError(err, "failed to ping database")
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"path":           cfg.Path,
		"max_open_conns": cfg.MaxOpenConns,
	})

	return db, nil
}

// RunMigrations applies all pending embedded migrations to the database.
func (dm *Manager) RunMigrations(db *sql.DB, path string) (err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "RunMigrations",
		attribute.String("db.system", "sqlite"),
		attribute.String("db.path", path),
	)
	defer observability.FinishSpan(span, &err)

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return contextutils.WrapError(err, "failed to open embedded migrations")
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return contextutils.WrapError(err, "failed to create migrate driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return contextutils.WrapError(err, "failed to create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return contextutils.WrapError(err, "failed to apply migrations")
	}

	dm.logger.Info(context.Background(), "Database migrations completed successfully")
	return nil
}

// ResetDB rolls the schema all the way down and re-applies every migration.
// Used by the admin CLI; destroys all catalog data.
func (dm *Manager) ResetDB(db *sql.DB, path string) (err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "ResetDB",
		attribute.String("db.path", path),
	)
	defer observability.FinishSpan(span, &err)

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return contextutils.WrapError(err, "failed to open embedded migrations")
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return contextutils.WrapError(err, "failed to create migrate driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return contextutils.WrapError(err, "failed to create migrate instance")
	}

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return contextutils.WrapError(err, "failed to roll back migrations")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return contextutils.WrapError(err, "failed to re-apply migrations")
	}

	dm.logger.Info(context.Background(), "Database reset completed")
	return nil
}
