package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"flashquiz/internal/config"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	"flashquiz/internal/services"
)

// PhraseHandler exposes read access to the phrase catalog.
type PhraseHandler struct {
	phraseService services.PhraseServiceInterface
	cfg           *config.Config
	logger        *observability.Logger
}

// NewPhraseHandler creates a new PhraseHandler.
func NewPhraseHandler(phraseService services.PhraseServiceInterface, cfg *config.Config, logger *observability.Logger) *PhraseHandler {
	return &PhraseHandler{phraseService: phraseService, cfg: cfg, logger: logger}
}

// Search finds phrases by text substring, optionally scoped to a language.
func (h *PhraseHandler) Search(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "search_phrases")
	defer span.End()

	search := c.Query("search")
	if search == "" {
		HandleValidationError(c, "search", search, "search term is required")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			HandleValidationError(c, "limit", raw, "must be a non-negative integer")
			return
		}
		limit = parsed
	}

	phrases, err := h.phraseService.SearchByText(ctx, search, models.Language(c.Query("language")), limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phrases": phrases, "count": len(phrases)})
}

// Random returns a random quiz-ready phrase card, optionally scoped to a
// set of languages (?language=en&language=pt).
func (h *PhraseHandler) Random(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_random_phrase")
	defer span.End()

	var languages []models.Language
	for _, raw := range c.QueryArray("language") {
		if raw != "" {
			languages = append(languages, models.Language(raw))
		}
	}

	card, err := h.phraseService.GetRandom(ctx, languages)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

// Get returns a phrase card: the phrase plus its ranked translation candidates.
func (h *PhraseHandler) Get(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_phrase")
	defer span.End()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleValidationError(c, "id", c.Param("id"), "must be an integer")
		return
	}

	card, err := h.phraseService.GetByID(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

// Stats returns catalog-wide statistics.
func (h *PhraseHandler) Stats(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_phrase_stats")
	defer span.End()

	stats, err := h.phraseService.GetStats(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
