package middleware

import (
	"pulsehub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceHeader = "X-Pulse-Trace"
	// TraceIDKey holds the trace id in the gin context.
	TraceIDKey = "trace_id"
)

// TraceMiddleware propagates the caller's trace id, minting one if absent,
// into both the gin context and the request context so services can log it.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Header(TraceHeader, id)
		c.Request = c.Request.WithContext(service.WithTraceID(c.Request.Context(), id))
		c.Next()
	}
}
