package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// IPRateLimiter implements a simple token bucket rate limiter per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	rate     time.Duration
	burst    int
	lastSeen map[string]time.Time

	done     chan struct{}
	stopOnce sync.Once
}

type tokenBucket struct {
	tokens   float64
	lastFill time.Time
}

func newIPRateLimiter(rate time.Duration, burst int) *IPRateLimiter {
	limiter := &IPRateLimiter{
		buckets:  make(map[string]*tokenBucket),
		rate:     rate,
		burst:    burst,
		lastSeen: make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	go limiter.cleanup()
	return limiter
}

// Stop terminates the background eviction goroutine. Safe to call more
// than once.
func (l *IPRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Allow reports whether a request from the given IP may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.lastSeen[ip] = now

	bucket, ok := l.buckets[ip]
	if !ok {
		l.buckets[ip] = &tokenBucket{tokens: float64(l.burst) - 1, lastFill: now}
		return true
	}

	elapsed := now.Sub(bucket.lastFill)
	refill := float64(elapsed) / float64(l.rate)
	bucket.tokens += refill
	if bucket.tokens > float64(l.burst) {
		bucket.tokens = float64(l.burst)
	}
	bucket.lastFill = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// cleanup evicts buckets for IPs not seen recently until Stop is called.
func (l *IPRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-30 * time.Minute)
			for ip, seen := range l.lastSeen {
				if seen.Before(cutoff) {
					delete(l.buckets, ip)
					delete(l.lastSeen, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func rateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limited",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}

func bodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
