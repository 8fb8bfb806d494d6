package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/media-push/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error when the
// handler has not written a response itself.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)

		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("trace_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		status, body := Render(c.Errors.Last().Err)
		body.TraceID = traceID
		c.JSON(status, body)
	}
}

// Render maps an error onto a status and an {error, details} body.
func Render(err error) (int, ErrorResponse) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal server error", Details: err.Error()}

	if appErr, ok := errors.As(err); ok {
		status = appErr.StatusCode()
		resp.Error = appErr.Message
		if appErr.Err != nil {
			resp.Details = appErr.Err.Error()
		} else {
			resp.Details = ""
		}
	}
	return status, resp
}
