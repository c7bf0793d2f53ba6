package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodySizeMiddleware returns middleware that limits request body size.
func MaxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.ContentLength > maxBytes {
			PayloadTooLargeError(c, fmt.Sprintf("request body too large, maximum: %d bytes", maxBytes))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

const (
	DefaultBodyLimit = 1 * 1024 * 1024  // 1MB
	IngestBodyLimit  = 32 * 1024 * 1024 // 32MB, batched record ingest
	MaxLimit         = 1000
	DefaultLimit     = 50
)

// clampLimit ensures limit is within a sane range.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
