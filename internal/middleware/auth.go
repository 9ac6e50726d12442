// Package middleware provides authentication middleware for the Gin web framework.
package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys for storing login information
const (
	// UsernameKey is the key used to store the username in the session
	UsernameKey = "username"
	// IsAdminKey is the key used to store the admin flag in the session
	IsAdminKey = "is_admin"
)

// RequireAuth returns a middleware that requires a logged-in session.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		username := session.Get(UsernameKey)
		usernameStr, ok := username.(string)
		if !ok || usernameStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		// Store user info in context for handlers to use
		c.Set(UsernameKey, usernameStr)
		c.Next()
	}
}

// RequireAdmin returns a middleware that requires a logged-in admin session.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		username := session.Get(UsernameKey)
		usernameStr, ok := username.(string)
		if !ok || usernameStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		isAdmin, ok := session.Get(IsAdminKey).(bool)
		if !ok || !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
				"code":  "FORBIDDEN",
			})
			c.Abort()
			return
		}

		c.Set(UsernameKey, usernameStr)
		c.Next()
	}
}
