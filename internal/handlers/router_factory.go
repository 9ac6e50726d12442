package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"flashquiz/internal/config"
	"flashquiz/internal/middleware"
	"flashquiz/internal/observability"
	"flashquiz/internal/practice"
	"flashquiz/internal/services"
	"flashquiz/internal/version"
)

// NewRouter creates the Gin engine with all middleware and routes wired up.
// The quiz routes are open; catalog administration requires an admin session.
func NewRouter(
	cfg *config.Config,
	phraseService services.PhraseServiceInterface,
	registry *practice.Registry,
	ledger *practice.Ledger,
	stats *practice.StatsTracker,
	xp *practice.XPCounter,
	logger *observability.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// HTTP request logging through the observability logger
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  latency.Milliseconds(),
			"http.client_ip":   c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "flashquiz"})
	})

	// OpenTelemetry middleware for HTTP tracing and context propagation
	router.Use(observability.GinMiddlewareWithErrorHandling("flashquiz"))

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// CORS. With no configured origins the middleware is skipped entirely
	// (same-origin deployment); cors.New panics on an empty allow list.
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	// Cookie-backed sessions for the admin surface
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	// Security headers
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Initialize handlers
	authHandler := NewAuthHandler(cfg, logger)
	sessionHandler := NewSessionHandler(registry, cfg, logger)
	progressHandler := NewProgressHandler(ledger, stats, xp, phraseService, logger)
	phraseHandler := NewPhraseHandler(phraseService, cfg, logger)
	adminHandler := NewAdminHandler(phraseService, cfg, logger)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "flashquiz",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/status", authHandler.Status)
		}

		session := v1.Group("/sessions")
		{
			session.POST("", sessionHandler.Create)
			session.GET("/:id", sessionHandler.Get)
			session.POST("/:id/input", sessionHandler.Input)
			session.POST("/:id/reveal", sessionHandler.Reveal)
			session.POST("/:id/explain", sessionHandler.Explain)
			session.POST("/:id/next", sessionHandler.Next)
			session.DELETE("/:id", sessionHandler.Delete)
		}

		v1.GET("/progress", progressHandler.Get)

		phrases := v1.Group("/phrases")
		{
			phrases.GET("", phraseHandler.Search)
			phrases.GET("/random", phraseHandler.Random)
			phrases.GET("/stats", phraseHandler.Stats)
			phrases.GET("/:id", phraseHandler.Get)
		}

		admin := v1.Group("/admin", middleware.RequireAdmin())
		{
			admin.POST("/import", adminHandler.Import)
			admin.GET("/orphans", adminHandler.Orphans)
			admin.DELETE("/phrases/:id", adminHandler.DeletePhrase)
			admin.DELETE("/similarities/:id1/:id2", adminHandler.DeleteSimilarity)
		}
	}

	return router
}
