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

// AdminHandler exposes catalog administration: bulk imports and cleanup.
// Every route sits behind the admin session middleware.
type AdminHandler struct {
	phraseService services.PhraseServiceInterface
	cfg           *config.Config
	logger        *observability.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(phraseService services.PhraseServiceInterface, cfg *config.Config, logger *observability.Logger) *AdminHandler {
	return &AdminHandler{phraseService: phraseService, cfg: cfg, logger: logger}
}

// ImportRequest is the bulk phrase-pair import payload.
type ImportRequest struct {
	Pairs     []models.ImportPair `json:"pairs" binding:"required,min=1,dive"`
	Overwrite bool                `json:"overwrite"`
}

// Import bulk-imports phrase pairs. Invalid rows are skipped, never fatal.
func (h *AdminHandler) Import(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_import_pairs")
	defer span.End()

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "pairs", "", err.Error())
		return
	}

	report, err := h.phraseService.ImportPairs(ctx, req.Pairs, req.Overwrite)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Orphans lists phrases with no similarity links.
func (h *AdminHandler) Orphans(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_orphans")
	defer span.End()

	orphans, err := h.phraseService.ListOrphans(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orphans": orphans, "count": len(orphans)})
}

// DeletePhrase removes a phrase and its similarity links.
func (h *AdminHandler) DeletePhrase(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_delete_phrase")
	defer span.End()

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleValidationError(c, "id", c.Param("id"), "must be an integer")
		return
	}

	if err := h.phraseService.DeletePhrase(ctx, id); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Phrase deleted"})
}

// DeleteSimilarity removes the link between two phrases.
func (h *AdminHandler) DeleteSimilarity(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_delete_similarity")
	defer span.End()

	id1, err := strconv.Atoi(c.Param("id1"))
	if err != nil {
		HandleValidationError(c, "id1", c.Param("id1"), "must be an integer")
		return
	}
	id2, err := strconv.Atoi(c.Param("id2"))
	if err != nil {
		HandleValidationError(c, "id2", c.Param("id2"), "must be an integer")
		return
	}

	if err := h.phraseService.DeleteSimilarity(ctx, id1, id2); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Similarity deleted"})
}
