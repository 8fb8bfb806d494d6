package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SizeLimitConfig represents size limit configuration
type SizeLimitConfig struct {
	MaxBodySize  int64 // in bytes
	ErrorMessage string
	SkipPaths    []string
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:  1 << 20, // 1MB
		ErrorMessage: "Request size exceeds limit",
	}
}

// SizeLimit rejects bodies above MaxBodySize and caps reads for bodies
// without a declared length.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultSizeLimitConfig().MaxBodySize
	}
	if config.ErrorMessage == "" {
		config.ErrorMessage = DefaultSizeLimitConfig().ErrorMessage
	}
	return func(c *gin.Context) {
		// Skip configured paths
		for _, path := range config.SkipPaths {
			if c.Request.URL.Path == path {
				c.Next()
				return
			}
		}

		if c.Request.ContentLength > config.MaxBodySize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("%s: body size exceeds %d bytes", config.ErrorMessage, config.MaxBodySize),
			})
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		}
		c.Next()
	}
}
