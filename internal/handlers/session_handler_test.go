package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashquiz/internal/config"
	"flashquiz/internal/database"
	"flashquiz/internal/localstate"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	"flashquiz/internal/practice"
	"flashquiz/internal/services"
)

type stubExplainer struct{}

func (stubExplainer) Explain(_ context.Context, _, _ models.Phrase) (*models.Explanation, error) {
	return &models.Explanation{Definition: "a greeting", Explanation: "informal"}, nil
}

func testRouterConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			AdminUsername: "admin",
			AdminPassword: "secret",
			SessionSecret: "test-session-secret",
			Debug:         true,
			CORSOrigins:   []string{"http://localhost:5173"},
		},
		Practice: config.PracticeConfig{
			MasteryCeiling:      config.DefaultMasteryCeiling,
			BaseChance:          config.DefaultBaseChance,
			ChanceCap:           config.DefaultChanceCap,
			ChanceScale:         config.DefaultChanceScale,
			MinXP:               config.DefaultMinXP,
			MaxXP:               config.DefaultMaxXP,
			FastThreshold:       config.DefaultFastThreshold,
			SlowThreshold:       config.DefaultSlowThreshold,
			CorrectAdvanceDelay: config.DefaultCorrectAdvanceDelay,
			RevealAdvanceDelay:  config.DefaultRevealAdvanceDelay,
		},
		IsTest: true,
	}
}

// setupTestRouter builds a full router over a temp database seeded with one
// hello/olá pair.
func setupTestRouter(t *testing.T) *gin.Engine {
	return setupTestRouterWithConfig(t, testRouterConfig())
}

func setupTestRouterWithConfig(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})

	db, err := database.NewManager(logger).InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	phraseService := services.NewPhraseService(db, cfg, logger, rand.New(rand.NewSource(1)))
	_, err = phraseService.ImportPairs(context.Background(), []models.ImportPair{
		{Phrase1: "hello", Language1: models.LanguageEnglish, Phrase2: "olá", Language2: models.LanguagePortuguese, Similarity: 0.95},
	}, false)
	require.NoError(t, err)

	store := localstate.NewStore(filepath.Join(t.TempDir(), "state.json"), logger)
	ledger := practice.NewLedger(store, &cfg.Practice, logger)
	stats := practice.NewStatsTracker(store, logger)
	xp := practice.NewXPCounter(store, logger)
	selector := practice.NewSelector(phraseService, ledger, &cfg.Practice, logger, rand.New(rand.NewSource(1)), nil)
	registry := practice.NewRegistry(selector, practice.NewScorer(&cfg.Practice), ledger, stats, xp, stubExplainer{}, &cfg.Practice, logger)

	return NewRouter(cfg, phraseService, registry, ledger, stats, xp, logger)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) practice.View {
	t.Helper()
	var view practice.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	return view
}

// counterpart maps each seeded phrase to its expected answer.
var counterpart = map[string]string{"hello": "olá", "olá": "hello"}

func TestSessionAPI_FullRound(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	view := decodeView(t, w)
	require.Equal(t, practice.StateShowing, view.State)
	require.NotNil(t, view.Prompt)
	sessionID := view.SessionID

	// A wrong attempt keeps the question open.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+sessionID+"/input", gin.H{"text": "wrong"})
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeView(t, w)
	assert.Equal(t, practice.StateTyping, view.State)
	assert.Equal(t, 1, view.Attempts)

	// The right answer resolves it and awards XP.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+sessionID+"/input", gin.H{"text": counterpart[view.Prompt.Text]})
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeView(t, w)
	assert.Equal(t, practice.StateCorrect, view.State)
	assert.GreaterOrEqual(t, view.AwardedXP, 1)
	assert.Equal(t, view.AwardedXP, view.XPTotal)
	assert.Equal(t, 1, view.TodayCount)

	// Progress reflects the finished round.
	w = doJSON(t, router, http.MethodGet, "/v1/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var progress struct {
		XPTotal    int `json:"xp_total"`
		TodayCount int `json:"today_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, view.XPTotal, progress.XPTotal)
	assert.Equal(t, 1, progress.TodayCount)

	w = doJSON(t, router, http.MethodDelete, "/v1/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionAPI_RevealAndBacklog(t *testing.T) {
	router := setupTestRouter(t)

	view := decodeView(t, doJSON(t, router, http.MethodPost, "/v1/sessions", nil))
	sessionID := view.SessionID

	w := doJSON(t, router, http.MethodPost, "/v1/sessions/"+sessionID+"/reveal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeView(t, w)
	assert.Equal(t, practice.StateRevealed, view.State)
	require.NotNil(t, view.Expected)
	assert.Equal(t, 1, view.BacklogSize)

	// Revealing twice conflicts with the resolved state.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+sessionID+"/reveal", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The backlog entry shows up in progress with its phrase attached.
	w = doJSON(t, router, http.MethodGet, "/v1/progress", nil)
	var progress struct {
		Backlog []BacklogItem `json:"backlog"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	require.Len(t, progress.Backlog, 1)
	require.NotNil(t, progress.Backlog[0].Phrase)
	assert.Equal(t, view.Prompt.ID, progress.Backlog[0].PhraseID)
}

func TestSessionAPI_Explain(t *testing.T) {
	router := setupTestRouter(t)

	view := decodeView(t, doJSON(t, router, http.MethodPost, "/v1/sessions", nil))

	w := doJSON(t, router, http.MethodPost, "/v1/sessions/"+view.SessionID+"/explain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view = decodeView(t, w)
	assert.Equal(t, practice.StateExplained, view.State)
	require.NotNil(t, view.Explanation)
	assert.Equal(t, "a greeting", view.Explanation.Definition)
	assert.Equal(t, 1, view.BacklogSize)
}

func TestSessionAPI_ManualNext(t *testing.T) {
	router := setupTestRouter(t)

	view := decodeView(t, doJSON(t, router, http.MethodPost, "/v1/sessions", nil))
	sessionID := view.SessionID

	// Skip without an attempt is rejected.
	w := doJSON(t, router, http.MethodPost, "/v1/sessions/"+sessionID+"/next", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	doJSON(t, router, http.MethodPost, "/v1/sessions/"+sessionID+"/input", gin.H{"text": "wrong"})

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+sessionID+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, practice.StateShowing, decodeView(t, w).State)
}

func TestSessionAPI_NotFound(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/sessions/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/does-not-exist/input", gin.H{"text": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionAPI_MissingInputText(t *testing.T) {
	router := setupTestRouter(t)

	view := decodeView(t, doJSON(t, router, http.MethodPost, "/v1/sessions", nil))

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/input", view.SessionID), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPhraseAPI_SearchAndGet(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/phrases?search=hello", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Phrases []models.Phrase `json:"phrases"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, 1, result.Count)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/phrases/%d", result.Phrases[0].ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var card models.PhraseCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	assert.Len(t, card.Options, 1)

	w = doJSON(t, router, http.MethodGet, "/v1/phrases/99999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/phrases?search=", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPhraseAPI_Random(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/phrases/random", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var card models.PhraseCard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	require.Len(t, card.Options, 1)
	assert.Equal(t, counterpart[card.Source.Text], card.Options[0].Text)

	// No phrases exist in the requested language.
	w = doJSON(t, router, http.MethodGet, "/v1/phrases/random?language=de", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPhraseAPI_Stats(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/phrases/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.CatalogStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalPhrases)
	assert.Equal(t, 1, stats.TotalSimilarities)
}

func TestRouter_CORSConfigured(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/phrases/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NoCORSOrigins(t *testing.T) {
	// An empty origin list must build a working router instead of
	// panicking inside the CORS middleware.
	cfg := testRouterConfig()
	cfg.Server.CORSOrigins = nil
	router := setupTestRouterWithConfig(t, cfg)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndVersion(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flashquiz")
}
