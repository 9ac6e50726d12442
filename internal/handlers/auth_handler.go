package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"flashquiz/internal/config"
	"flashquiz/internal/middleware"
	"flashquiz/internal/observability"
)

// AuthHandler handles login and logout for the admin surface. The quiz
// itself is open; only catalog administration sits behind a session.
type AuthHandler struct {
	cfg    *config.Config
	logger *observability.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, logger: logger}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login validates admin credentials from the config and starts a session.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "auth_login")
	defer span.End()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "credentials", "", err.Error())
		return
	}

	if h.cfg.Server.AdminUsername == "" || h.cfg.Server.AdminPassword == "" {
		StandardizeHTTPError(c, http.StatusServiceUnavailable, "Admin login is not configured", "")
		return
	}

	if !usernameMatches(req.Username, h.cfg.Server.AdminUsername) || !passwordMatches(req.Password, h.cfg.Server.AdminPassword) {
		h.logger.Warn(ctx, "Failed admin login attempt", map[string]interface{}{
			"username": req.Username,
			"ip":       c.ClientIP(),
		})
		StandardizeHTTPError(c, http.StatusUnauthorized, "Invalid username or password", "")
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.UsernameKey, req.Username)
	session.Set(middleware.IsAdminKey, true)
	if err := session.Save(); err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Admin logged in", map[string]interface{}{"username": req.Username})
	c.JSON(http.StatusOK, gin.H{"username": req.Username, "is_admin": true})
}

// Logout clears the session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Status reports whether the request carries a logged-in session.
func (h *AuthHandler) Status(c *gin.Context) {
	session := sessions.Default(c)

	username, _ := session.Get(middleware.UsernameKey).(string)
	isAdmin, _ := session.Get(middleware.IsAdminKey).(bool)

	c.JSON(http.StatusOK, gin.H{
		"authenticated": username != "",
		"username":      username,
		"is_admin":      isAdmin,
	})
}

func usernameMatches(given, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

// passwordMatches accepts either a bcrypt hash or a plain secret in the
// config, so local setups can skip hashing.
func passwordMatches(given, stored string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(stored)) == 1
}
