package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// usernameKey is the gin context key the middleware stores the
// authenticated username under — handlers read it back with Username(c)
// instead of re-parsing the header themselves.
const usernameKey = "syncd.username"

// Middleware extracts and verifies the bearer token on every request,
// aborting with an UNAUTHORIZED envelope on any failure: missing header,
// malformed scheme, or a token that fails Verify.
func Middleware(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		username, err := issuer.Verify(strings.TrimPrefix(header, prefix))
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(usernameKey, username)
		c.Next()
	}
}

// Username returns the authenticated username set by Middleware. It must
// only be called on routes the middleware guards.
func Username(c *gin.Context) string {
	v, _ := c.Get(usernameKey)
	s, _ := v.(string)
	return s
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "UNAUTHORIZED", "error": msg})
}
