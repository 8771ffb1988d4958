// Package middleware provides HTTP middleware for the Slawatch API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrgIDHeader carries the tenant of an API request.
const OrgIDHeader = "X-Org-ID"

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	// OrgIDContextKey is the context key for the request's organization.
	OrgIDContextKey ContextKey = "org_id"
)

// TokenAuth returns a middleware that requires "Authorization: Bearer <token>".
// An empty token disables the check.
func TokenAuth(token string, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(token)) != 1 {
			log.Debug().Str("path", c.Request.URL.Path).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// TenantMiddleware resolves the organization from the X-Org-ID header and
// stores it in the Gin context.
func TenantMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "tenant_middleware").Logger()

	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(OrgIDHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": OrgIDHeader + " header is required"})
			return
		}
		orgID, err := uuid.Parse(raw)
		if err != nil || orgID == uuid.Nil {
			log.Debug().Str("org_id", raw).Msg("invalid organization header")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + OrgIDHeader + " header"})
			return
		}
		c.Set(string(OrgIDContextKey), orgID)
		c.Next()
	}
}

// GetOrgID returns the organization stored by TenantMiddleware.
func GetOrgID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(string(OrgIDContextKey))
	if !exists {
		return uuid.Nil, false
	}
	orgID, ok := v.(uuid.UUID)
	return orgID, ok && orgID != uuid.Nil
}

// RequireOrgID returns the organization or aborts with 400 if none is set.
func RequireOrgID(c *gin.Context) (uuid.UUID, bool) {
	orgID, ok := GetOrgID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "organization required"})
		return uuid.Nil, false
	}
	return orgID, true
}
