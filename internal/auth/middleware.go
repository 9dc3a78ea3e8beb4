// Package auth resolves caller identity set by the upstream gateway.
//
// Authentication itself happens upstream; requests arrive with the
// verified user ID in the X-User-ID header. This package only plumbs
// that identity into the gin context and enforces admin access.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the key for storing the caller's user ID in gin context
	ContextKeyUserID = "authUserID"
	// ContextKeyAdmin marks a request authenticated with the admin secret
	ContextKeyAdmin = "authAdmin"

	// HeaderUserID carries the upstream-verified caller identity
	HeaderUserID = "X-User-ID"
	// HeaderAdminSecret carries the shared admin secret
	HeaderAdminSecret = "X-Admin-Secret"
)

// Middleware extracts the upstream-verified user ID from the request
// and stores it in the gin context. Missing identity is not an error
// here; RequireUser rejects on routes that need it.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(HeaderUserID); userID != "" {
			c.Set(ContextKeyUserID, userID)
		}
		c.Next()
	}
}

// RequireUser rejects requests without an upstream-verified identity
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyUserID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing X-User-ID header. Requests must come through the API gateway.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests that don't carry the admin secret.
// With an empty configured secret (development only) everything is rejected
// unless the config layer allowed it explicitly.
func RequireAdmin(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderAdminSecret)
		if adminSecret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(adminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required.",
			})
			return
		}
		c.Set(ContextKeyAdmin, true)
		c.Next()
	}
}

// UserID returns the authenticated user's ID from context
func UserID(c *gin.Context) string {
	id, exists := c.Get(ContextKeyUserID)
	if !exists {
		return ""
	}
	return id.(string)
}

// IsAdmin checks if the request carries admin authority
func IsAdmin(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyAdmin)
	return exists
}
