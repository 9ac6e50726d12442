package services

import (
	"context"
	"testing"

	"flashquiz/internal/config"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExplanation_ValidJSON(t *testing.T) {
	explanation, err := parseExplanation(`{
		"example": "Obrigado pela ajuda! (Thanks for the help!)",
		"definition": "An expression of gratitude.",
		"explanation": "Used by male speakers; female speakers say obrigada.",
		"grammar": "interjection, inflects for speaker gender",
		"pronunciation_ipa": "o.bɾiˈɡa.du",
		"synonyms": ["valeu"],
		"alternatives": ["obrigada"]
	}`)
	require.NoError(t, err)
	assert.Equal(t, "An expression of gratitude.", explanation.Definition)
	assert.Equal(t, []string{"valeu"}, explanation.Synonyms)
	assert.Equal(t, []string{"obrigada"}, explanation.Alternatives)
}

func TestParseExplanation_StripsCodeFence(t *testing.T) {
	explanation, err := parseExplanation("```json\n{\"definition\": \"a greeting\", \"explanation\": \"informal\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "a greeting", explanation.Definition)
}

func TestParseExplanation_InvalidJSON(t *testing.T) {
	_, err := parseExplanation("Sorry, I cannot help with that.")
	assert.ErrorIs(t, err, contextutils.ErrExplanationInvalid)
}

func TestParseExplanation_EmptyPayload(t *testing.T) {
	// Parses but carries nothing useful.
	_, err := parseExplanation(`{"synonyms": ["a", "b"]}`)
	assert.ErrorIs(t, err, contextutils.ErrExplanationInvalid)
}

func newTestExplanationService(t *testing.T) (*ExplanationService, *PhraseService) {
	t.Helper()

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	db := newServiceTestDB(t)
	cfg := &config.Config{}
	return NewExplanationService(db, cfg, logger), NewPhraseService(db, cfg, logger, nil)
}

func TestExplanationService_CacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	service, phrases := newTestExplanationService(t)

	// Cache rows carry foreign keys into the phrase catalog.
	_, err := phrases.ImportPairs(ctx, []models.ImportPair{
		pair("thank you", models.LanguageEnglish, "obrigado", models.LanguagePortuguese, 0.98),
	}, false)
	require.NoError(t, err)
	sourceID := mustFindPhrase(t, phrases, "thank you", models.LanguageEnglish)
	answerID := mustFindPhrase(t, phrases, "obrigado", models.LanguagePortuguese)

	_, ok := service.lookupCache(ctx, sourceID, answerID)
	assert.False(t, ok)

	stored := &models.Explanation{
		Definition:  "An expression of gratitude.",
		Explanation: "Inflects for speaker gender.",
	}
	service.storeCache(ctx, sourceID, answerID, stored)

	cached, ok := service.lookupCache(ctx, sourceID, answerID)
	require.True(t, ok)
	assert.Equal(t, stored, cached)
}

func TestExplanationService_CorruptCacheEntryDropped(t *testing.T) {
	ctx := context.Background()
	service, phrases := newTestExplanationService(t)

	_, err := phrases.ImportPairs(ctx, []models.ImportPair{
		pair("hello", models.LanguageEnglish, "olá", models.LanguagePortuguese, 0.95),
	}, false)
	require.NoError(t, err)
	sourceID := mustFindPhrase(t, phrases, "hello", models.LanguageEnglish)
	answerID := mustFindPhrase(t, phrases, "olá", models.LanguagePortuguese)

	_, err = service.db.ExecContext(ctx,
		"INSERT INTO explanation_cache (phrase_id, answer_id, payload) VALUES (?, ?, ?)",
		sourceID, answerID, "{not json")
	require.NoError(t, err)

	_, ok := service.lookupCache(ctx, sourceID, answerID)
	assert.False(t, ok)

	// The corrupt row was scrubbed.
	var count int
	require.NoError(t, service.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM explanation_cache").Scan(&count))
	assert.Zero(t, count)
}

func TestExplanationService_CacheDeletedWithPhrase(t *testing.T) {
	ctx := context.Background()
	service, phrases := newTestExplanationService(t)

	_, err := phrases.ImportPairs(ctx, []models.ImportPair{
		pair("hello", models.LanguageEnglish, "olá", models.LanguagePortuguese, 0.95),
	}, false)
	require.NoError(t, err)
	sourceID := mustFindPhrase(t, phrases, "hello", models.LanguageEnglish)
	answerID := mustFindPhrase(t, phrases, "olá", models.LanguagePortuguese)

	service.storeCache(ctx, sourceID, answerID, &models.Explanation{Definition: "a greeting"})

	require.NoError(t, phrases.DeletePhrase(ctx, sourceID))

	_, ok := service.lookupCache(ctx, sourceID, answerID)
	assert.False(t, ok)
}
