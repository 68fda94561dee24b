// internal/httpapi/middleware.go
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request id to every request, keeping a caller-supplied
// one when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request with latency and status.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("http request", map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"elapsedMs": time.Since(start).Milliseconds(),
			"requestId": c.GetString("request_id"),
		})
	}
}
