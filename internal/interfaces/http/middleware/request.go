package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/logger"
)

// RequestContext assigns a request id (reusing a caller supplied X-Request-ID) and
// places it, with the route's app id, into the request context for logging.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(constants.HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Header(constants.HeaderRequestID, requestID)

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, requestID)
		if appID := c.Param("app_id"); appID != "" {
			ctx = context.WithValue(ctx, constants.ContextKeyAppID, appID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessLog logs every request after it completes.
func AccessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.F("latency_ms", time.Since(start).Milliseconds()),
			logger.String("client_ip", c.ClientIP()),
		}
		switch {
		case c.Writer.Status() >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			log.Error(c.Request.Context(), "Request failed", err, fields...)
		case c.Writer.Status() >= 400:
			log.Warn(c.Request.Context(), "Request rejected", fields...)
		default:
			log.Info(c.Request.Context(), "Request processed", fields...)
		}
	}
}
