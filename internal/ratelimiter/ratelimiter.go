package ratelimiter

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter decides whether a client may issue another request
type RateLimiter interface {
	Allow(clientKey string) bool
}

// TokenBucketRateLimiter keeps one token bucket per client key
type TokenBucketRateLimiter struct {
	maxTokens  int
	refillRate time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucketRateLimiter creates a limiter that holds up to maxTokens per
// client and adds one token every refillRate. Call Close to stop the
// background sweeper.
func NewTokenBucketRateLimiter(maxTokens int, refillRate time.Duration) *TokenBucketRateLimiter {
	rl := &TokenBucketRateLimiter{
		maxTokens:  maxTokens,
		refillRate: refillRate,
		buckets:    make(map[string]*bucket),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go rl.sweep(10 * time.Minute)
	return rl
}

// Allow consumes a token for clientKey if one is available
func (rl *TokenBucketRateLimiter) Allow(clientKey string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[clientKey]
	if !ok {
		b = &bucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[clientKey] = b
	}

	if rl.refillRate > 0 {
		if n := int(now.Sub(b.lastRefill) / rl.refillRate); n > 0 {
			b.tokens = min(b.tokens+n, rl.maxTokens)
			b.lastRefill = b.lastRefill.Add(time.Duration(n) * rl.refillRate)
		}
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Close stops the background sweeper
func (rl *TokenBucketRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *TokenBucketRateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Hour)
		}
	}
}

// evictIdle drops buckets untouched for longer than idle
func (rl *TokenBucketRateLimiter) evictIdle(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	for key, b := range rl.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Middleware rejects requests over the limit with 429. onReject, if not
// nil, is called for every rejected request.
func Middleware(limiter RateLimiter, onReject func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientKey(r)) {
				if onReject != nil {
					onReject(r)
				}
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller: the first X-Forwarded-For hop, then
// X-Real-IP, then the remote host without its port.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
