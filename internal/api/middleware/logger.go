package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/nutrilens/internal/logger"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const loggerKey = "logger"

// LoggerMiddleware injects a request-scoped logger and logs each request's
// completion with status, size and latency. An incoming X-Request-ID is kept
// when it is a valid UUID.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		ctx := logger.WithFields(c.Request.Context(), logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(loggerKey, logger.FromContext(ctx))
		c.Header(RequestIDHeader, requestID)

		logger.CtxDebug(ctx, "Request started: method=%s, path=%s, client_ip=%s",
			c.Request.Method, path, c.ClientIP())

		c.Next()

		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}

		// Handlers may have enriched the request context (user_id, meal_id).
		entry := logger.With(logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			logger.FieldSize:       c.Writer.Size(),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn(c.Request.Context(), "Request completed: method=%s, path=%s", c.Request.Method, fullPath)
			return
		}
		entry.Info(c.Request.Context(), "Request completed: method=%s, path=%s", c.Request.Method, fullPath)
	}
}

// GetLogger returns the request-scoped logger. The request context is
// preferred because later middleware (auth) enrich it after the value stored
// under "logger" was set.
// Parameters:
//   - c: Gin request context.
//
// Returns:
//   - *logger.Logger: request-scoped logger or default logger.
func GetLogger(c *gin.Context) *logger.Logger {
	if c.Request != nil {
		return logger.FromContext(c.Request.Context())
	}
	if l, exists := c.Get(loggerKey); exists {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.Default()
}
