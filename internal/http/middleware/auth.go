// README: Firebase ID token authentication and role checks for gin routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quickauto/internal/infra"
	"quickauto/internal/types"
)

const (
	ctxCallerUID   = "caller_uid"
	ctxCallerRole  = "caller_role"
	ctxCallerEmail = "caller_email"
)

// Auth verifies the Firebase ID token from the Authorization header. Browsers cannot set headers on
// websocket upgrades, so a `token` query parameter is accepted when the header is absent.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || tok == nil || tok.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxCallerUID, types.ID(tok.UID))
		if role, ok := tok.Claims["role"].(string); ok {
			c.Set(ctxCallerRole, role)
		}
		if email, ok := tok.Claims["email"].(string); ok {
			c.Set(ctxCallerEmail, email)
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		if q := c.Query("token"); q != "" {
			return q, true
		}
		return "", false
	}
	raw, ok := strings.CutPrefix(h, "Bearer ")
	raw = strings.TrimSpace(raw)
	return raw, ok && raw != ""
}

// RequireRole rejects callers whose role claim differs from role. It must run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": role + " role required"})
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) types.ID {
	v, _ := c.Get(ctxCallerUID)
	uid, _ := v.(types.ID)
	return uid
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxCallerRole)
}

func CallerEmail(c *gin.Context) string {
	return c.GetString(ctxCallerEmail)
}
