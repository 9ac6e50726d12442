package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flashquiz/internal/config"
	"flashquiz/internal/observability"
	"flashquiz/internal/practice"
)

// SessionHandler exposes the quiz session state machine over HTTP. Each
// route loads the session, applies one event, and returns the resulting
// snapshot.
type SessionHandler struct {
	registry *practice.Registry
	cfg      *config.Config
	logger   *observability.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *practice.Registry, cfg *config.Config, logger *observability.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, cfg: cfg, logger: logger}
}

// Create starts a new quiz session and returns its first question.
func (h *SessionHandler) Create(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "session_create")
	defer span.End()

	_, view, err := h.registry.Create(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Get returns the current session snapshot without changing state.
func (h *SessionHandler) Get(c *gin.Context) {
	controller, err := h.registry.Get(c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, controller.View())
}

// InputRequest is the answer-attempt payload.
type InputRequest struct {
	Text string `json:"text" binding:"required"`
}

// Input submits an answer attempt.
func (h *SessionHandler) Input(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "session_input", observability.AttributeSessionID(c.Param("id")))
	defer span.End()

	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "input", "", err.Error())
		return
	}

	controller, err := h.registry.Get(c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	view, err := controller.Input(ctx, req.Text)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Reveal gives up on the open question.
func (h *SessionHandler) Reveal(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "session_reveal", observability.AttributeSessionID(c.Param("id")))
	defer span.End()

	controller, err := h.registry.Get(c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	view, err := controller.Reveal(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Explain resolves the open question with an LLM explanation. Blocks until
// the explanation lands; duplicate calls while one is in flight are no-ops.
func (h *SessionHandler) Explain(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "session_explain", observability.AttributeSessionID(c.Param("id")))
	defer span.End()

	controller, err := h.registry.Get(c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	view, err := controller.Explain(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Next skips to the next question (honored only while typing).
func (h *SessionHandler) Next(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "session_next", observability.AttributeSessionID(c.Param("id")))
	defer span.End()

	controller, err := h.registry.Get(c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	view, err := controller.Next(ctx)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete closes and forgets a session.
func (h *SessionHandler) Delete(c *gin.Context) {
	h.registry.Delete(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}
