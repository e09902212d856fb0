package middleware

import (
	"net/http"

	"pulsehub/internal/repository"

	"github.com/gin-gonic/gin"
)

// ClientPrefixKey holds the label prefix the authenticated producer may write.
const ClientPrefixKey = "client_prefix"

func APIKeyMiddleware(repo repository.ClientRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Pulse-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		client, err := repo.Lookup(c.Request.Context(), apiKey)
		if err != nil || client == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(ClientPrefixKey, client.Prefix)
		c.Next()
	}
}
