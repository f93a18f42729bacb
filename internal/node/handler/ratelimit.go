package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/jmerrifield20/LandRegistry/internal/identity"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

var nodeRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "landreg_node_rate_limited_total",
	Help: "Requests refused by the rate limiter, by bucket kind.",
}, []string{"bucket"})

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a token-bucket limiter keyed by caller. Requests naming an
// account (X-Account) share that account's bucket; anonymous requests are
// bucketed by client IP.
type Limiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter returns a Limiter allowing rps steady-state requests per second
// with the given burst. Idle buckets are swept until ctx is done.
func NewLimiter(ctx context.Context, rps, burst int) *Limiter {
	l := &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	go l.sweep(ctx)
	return l
}

// RateLimiter is shorthand for NewLimiter(ctx, rps, burst).Middleware().
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	return NewLimiter(ctx, rps, burst).Middleware()
}

func (l *Limiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-limiterIdleAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Allow spends one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = l.now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

// Middleware returns the Gin middleware enforcing the limiter.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, key := "ip", "ip:"+c.ClientIP()
		if acct := c.GetHeader(identity.HeaderAccount); acct != "" {
			kind, key = "account", "acct:"+acct
		}
		if !l.Allow(key) {
			nodeRateLimitedTotal.WithLabelValues(kind).Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
