// Package ratelimit provides the per-key token buckets behind the signing limit:
// an in-process implementation and a Redis implementation shared by replicas.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/turtacn/credcore/pkg/constants"
)

// Result is the outcome of a single bucket operation.
type Result struct {
	Allowed   bool
	Remaining int64
	// RetryAfter is how long until the request would have been allowed. Zero when
	// Allowed or when the bucket never refills.
	RetryAfter time.Duration
}

// Limiter decides whether one more request for key may proceed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// LocalLimiter keeps one token bucket per key in process memory. Buckets left
// unused until they would have refilled completely are dropped, so the number of
// tracked keys follows recent traffic rather than every key ever seen.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
}

// NewLocalLimiter creates buckets refilled at perSecond tokens per second holding
// at most burst tokens. A burst below one is raised to one.
func NewLocalLimiter(perSecond float64, burst int) *LocalLimiter {
	return NewLocalLimiterWithIdle(perSecond, burst, constants.RateLimitIdleTTL)
}

// NewLocalLimiterWithIdle is NewLocalLimiter with an explicit idle period. The
// effective period is never shorter than the time an empty bucket takes to refill,
// which makes dropping a bucket indistinguishable from keeping it.
// NewLocalLimiterWithIdle 创建带空闲淘汰时间的本地限流器。
func NewLocalLimiterWithIdle(perSecond float64, burst int, idle time.Duration) *LocalLimiter {
	if burst <= 0 {
		burst = 1
	}
	if perSecond > 0 {
		refill := time.Duration(math.Ceil(float64(burst) / perSecond * float64(time.Second)))
		if refill > idle {
			idle = refill
		}
	}
	return &LocalLimiter{
		buckets: cache.New(idle, idle),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		b = v.(*rate.Limiter)
	} else {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	// re-setting extends the idle deadline
	l.buckets.SetDefault(key, b)
	return b
}

// Allow consumes one token from the bucket of key.
func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	b := l.bucket(key)
	now := time.Now()
	r := b.ReserveN(now, 1)
	if !r.OK() {
		return &Result{}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &Result{RetryAfter: delay}, nil
	}
	return &Result{Allowed: true, Remaining: int64(b.TokensAt(now))}, nil
}

// Reset forgets the bucket of key so it starts full again.
func (l *LocalLimiter) Reset(key string) {
	l.buckets.Delete(key)
}

// Len returns the number of tracked keys, counting expired ones not yet swept.
func (l *LocalLimiter) Len() int {
	return l.buckets.ItemCount()
}

// Sweep drops idle buckets now instead of waiting for the janitor.
func (l *LocalLimiter) Sweep() {
	l.buckets.DeleteExpired()
}
