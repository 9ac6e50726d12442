package services

import (
	"database/sql"
	"math/rand"
	"path/filepath"
	"testing"

	"flashquiz/internal/config"
	"flashquiz/internal/database"
	"flashquiz/internal/observability"

	"github.com/stretchr/testify/require"
)

// newServiceTestDB provides a clean, isolated SQLite database for each test,
// with all migrations applied.
func newServiceTestDB(t *testing.T) *sql.DB {
	t.Helper()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	dbManager := database.NewManager(logger)

	db, err := dbManager.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestPhraseService(t *testing.T) *PhraseService {
	t.Helper()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	return NewPhraseService(newServiceTestDB(t), &config.Config{}, logger, rand.New(rand.NewSource(1)))
}
