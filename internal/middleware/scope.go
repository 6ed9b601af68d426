package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireScope is a middleware that checks the granted scopes on the request.
// It must run after OAuth2Auth.
func RequireScope(requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextKeyScopes)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization_required"})
			c.Abort()
			return
		}

		scopes, ok := value.([]string)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient_scope"})
			c.Abort()
			return
		}

		for _, scope := range scopes {
			if scope == requiredScope {
				c.Next()
				return
			}
		}

		c.Header("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+requiredScope+`"`)
		c.JSON(http.StatusForbidden, gin.H{
			"error":          "insufficient_scope",
			"required_scope": requiredScope,
		})
		c.Abort()
	}
}
