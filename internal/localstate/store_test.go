package localstate

import (
	"os"
	"path/filepath"
	"testing"

	"flashquiz/internal/config"
	"flashquiz/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	return NewStore(path, logger), path
}

func TestStore_MissingFileStartsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	var n int
	assert.False(t, store.Get("xp_total", &n))
	assert.Zero(t, n)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Put("xp_total", 42))

	var n int
	require.True(t, store.Get("xp_total", &n))
	assert.Equal(t, 42, n)

	// Value survives a reopen
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	reopened := NewStore(path, logger)
	n = 0
	require.True(t, reopened.Get("xp_total", &n))
	assert.Equal(t, 42, n)
}

func TestStore_IndependentKeys(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Put("daily_stats", map[string]int{"2026-08-27": 5}))
	require.NoError(t, store.Put("xp_total", 7))

	var stats map[string]int
	require.True(t, store.Get("daily_stats", &stats))
	assert.Equal(t, 5, stats["2026-08-27"])
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	store := NewStore(path, logger)

	var n int
	assert.False(t, store.Get("xp_total", &n))

	// Store is still usable after recovering from corruption
	require.NoError(t, store.Put("xp_total", 1))
	require.True(t, store.Get("xp_total", &n))
	assert.Equal(t, 1, n)
}

func TestStore_UnparsableValueFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"xp_total": "not-a-number"}`), 0o600))

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	store := NewStore(path, logger)

	var n int
	assert.False(t, store.Get("xp_total", &n))
	assert.Zero(t, n)
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Put("xp_total", 3))
	require.NoError(t, store.Delete("xp_total"))

	var n int
	assert.False(t, store.Get("xp_total", &n))

	// Deleting a missing key is a no-op
	require.NoError(t, store.Delete("xp_total"))
}
