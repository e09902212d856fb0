package middleware

import (
	"net/http"
	"strings"

	"pulsehub/internal/service"

	"github.com/gin-gonic/gin"
)

// devOperator is injected for X-Dev-Pass requests in dev and loadtest.
var devOperator = service.OperatorInfo{UserID: "0", Name: "dev-operator", Role: service.RoleAdmin}

// bearerToken reads the Authorization header, falling back to ?token= for
// EventSource clients which cannot set headers.
func bearerToken(c *gin.Context) string {
	if tok, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return c.Query("token")
}

func JWTMiddleware(secret []byte, devMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var op *service.OperatorInfo
		if devMode && c.GetHeader("X-Dev-Pass") == "true" {
			dev := devOperator
			op = &dev
		} else {
			tok := bearerToken(c)
			if tok == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			claims, err := service.ParseToken(secret, tok, service.TokenAccess)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
				return
			}
			op = &service.OperatorInfo{UserID: claims.UserID, Name: claims.Username, Role: claims.Role}
		}

		c.Request = c.Request.WithContext(service.WithOperator(c.Request.Context(), op))
		c.Next()
	}
}

// RequireAdmin must run after JWTMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !service.GetOperatorInfo(c.Request.Context()).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}
