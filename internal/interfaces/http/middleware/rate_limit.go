package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/ratelimit"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// SignRateLimiter applies a per-application token bucket to signing requests.
type SignRateLimiter struct {
	backend ratelimit.Limiter
	metrics service.Metrics
	log     logger.Logger
	known   func(appID string) bool
}

// SignRateLimiterOption configures a SignRateLimiter.
type SignRateLimiterOption func(*SignRateLimiter)

// WithKnownApps limits only applications for which known returns true. Other
// requests go straight to the handler, which rejects them, and never get a bucket.
func WithKnownApps(known func(appID string) bool) SignRateLimiterOption {
	return func(l *SignRateLimiter) { l.known = known }
}

// NewSignRateLimiter wraps backend. A nil backend disables limiting.
func NewSignRateLimiter(backend ratelimit.Limiter, metrics service.Metrics, log logger.Logger, opts ...SignRateLimiterOption) *SignRateLimiter {
	l := &SignRateLimiter{backend: backend, metrics: metrics, log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middleware rejects signing requests over the per-app rate with 429 and a
// Retry-After header in whole seconds. Backend failures let the request through.
func (l *SignRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.backend == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		appID := c.Param("app_id")
		if l.known != nil && !l.known(appID) {
			c.Next()
			return
		}
		res, err := l.backend.Allow(ctx, "sign:"+appID)
		if err != nil {
			l.log.Error(ctx, "Sign rate limit check failed", err, logger.String("app_id", appID))
			c.Next()
			return
		}
		if res.Allowed {
			c.Next()
			return
		}

		l.metrics.RecordRateLimitHit(appID, "sign")
		l.log.Warn(ctx, "Sign rate limit exceeded",
			logger.String("app_id", appID),
			logger.Duration("retry_after", res.RetryAfter),
		)
		c.Header("Retry-After", retryAfterSeconds(res.RetryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse(errors.RateLimited("sign:"+appID), ""))
	}
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
