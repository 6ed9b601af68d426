package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/nextmcp/nextcloud-mcp-gateway/internal/oauth"
)

// Context keys populated by OAuth2Auth for downstream handlers and tools.
const (
	ContextKeyAuthInfo = "authInfo"
	ContextKeyClientID = "clientID"
	ContextKeyUserID   = "userID"
	ContextKeyScopes   = "scopes"
)

// OAuth2Auth validates the Bearer token on every request before it reaches
// the MCP handler, following RFC 6750. Verification is pure computation;
// no store is consulted.
func OAuth2Auth(provider *oauth.Provider, issuer string) gin.HandlerFunc {
	resourceMetadata := strings.TrimRight(issuer, "/") + "/.well-known/oauth-protected-resource"

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondUnauthorized(c, resourceMetadata, "authorization_required",
				"Missing Authorization header. A valid Bearer token is required.")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondUnauthorized(c, resourceMetadata, "invalid_request",
				"Authorization header must use Bearer scheme. Format: 'Bearer <token>'")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			respondUnauthorized(c, resourceMetadata, "invalid_token", "Bearer token is empty")
			return
		}

		authInfo, err := provider.VerifyAccessToken(tokenString)
		if err != nil {
			if errors.Is(err, oauth.ErrNoSigningSecret) {
				// Server misconfiguration, not a client problem
				log.WithError(err).Error("Access token verification impossible")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":             "server_error",
					"error_description": "Token verification is not configured",
				})
				c.Abort()
				return
			}
			respondUnauthorized(c, resourceMetadata, "invalid_token", "The access token is invalid or expired")
			return
		}

		c.Set(ContextKeyAuthInfo, authInfo)
		c.Set(ContextKeyClientID, authInfo.ClientID)
		c.Set(ContextKeyUserID, authInfo.UserID)
		c.Set(ContextKeyScopes, authInfo.Scopes)

		// Tool handlers read the identity from the request context
		c.Request = c.Request.WithContext(oauth.WithAuthInfo(c.Request.Context(), authInfo))

		c.Next()
	}
}

// respondUnauthorized replies with an RFC 6750 error body plus the
// WWW-Authenticate challenge that points clients at the metadata document.
func respondUnauthorized(c *gin.Context, resourceMetadata, errorCode, description string) {
	c.Header("WWW-Authenticate",
		fmt.Sprintf(`Bearer error=%q, error_description=%q, resource_metadata=%q`,
			errorCode, description, resourceMetadata))
	c.JSON(http.StatusUnauthorized, gin.H{
		"error":             errorCode,
		"error_description": description,
	})
	c.Abort()
}
