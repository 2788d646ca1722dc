package fakeapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fintrack/internal/log"
)

// requestLogger logs each request once it completes, reusing the
// client's X-Request-ID when present.
func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		fields := log.NewFields().WithHTTPResponse(status, time.Since(start).Milliseconds())
		fields[log.FieldRequestID] = requestID
		fields[log.FieldMethod] = c.Request.Method
		fields[log.FieldURL] = c.Request.URL.Path
		logger.LogContext(c.Request.Context(), level, "HTTP request completed", fields.ToSlice()...)
	}
}
