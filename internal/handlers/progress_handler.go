package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	"flashquiz/internal/practice"
	"flashquiz/internal/services"
)

// ProgressHandler reports the learner's accumulated state: XP, daily
// activity, and the practice backlog.
type ProgressHandler struct {
	ledger        *practice.Ledger
	stats         *practice.StatsTracker
	xp            *practice.XPCounter
	phraseService services.PhraseServiceInterface
	logger        *observability.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(ledger *practice.Ledger, stats *practice.StatsTracker, xp *practice.XPCounter, phraseService services.PhraseServiceInterface, logger *observability.Logger) *ProgressHandler {
	return &ProgressHandler{
		ledger:        ledger,
		stats:         stats,
		xp:            xp,
		phraseService: phraseService,
		logger:        logger,
	}
}

// BacklogItem is one practice backlog entry enriched with its phrase text.
type BacklogItem struct {
	models.PracticeEntry
	Phrase *models.Phrase `json:"phrase,omitempty"`
}

// Get returns the full progress snapshot.
func (h *ProgressHandler) Get(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_progress")
	defer span.End()

	backlog := make([]BacklogItem, 0)
	for _, entry := range h.ledger.Entries() {
		item := BacklogItem{PracticeEntry: entry}
		// Best effort: a backlog entry may outlive its phrase.
		if phrase, err := h.phraseService.GetPhrase(ctx, entry.PhraseID); err == nil {
			item.Phrase = phrase
		}
		backlog = append(backlog, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"xp_total":        h.xp.Total(),
		"today_count":     h.stats.TodayCount(),
		"yesterday_count": h.stats.YesterdayCount(),
		"today_diff":      h.stats.Diff(),
		"daily_window":    h.stats.LastWindow(),
		"backlog":         backlog,
	})
}
