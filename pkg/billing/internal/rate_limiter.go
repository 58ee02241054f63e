package internal

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a fixed-window, in-memory limiter keyed by client address.
// It protects the webhook endpoint from floods of unsigned requests; genuine
// provider deliveries stay far below any sensible limit.
type RateLimiter struct {
	mu            sync.Mutex
	requests      map[string]*bucket
	limit         int
	window        time.Duration
	requestCount  int
	cleanupEvery  int
	cleanupAtSize int

	// TrustForwarded makes ClientIP honour X-Forwarded-For.
	// Enable it only behind a proxy that overwrites the header.
	TrustForwarded bool

	// OnLimited, if set, is called for every refused request.
	OnLimited func(r *http.Request, key string)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per key per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests:      make(map[string]*bucket),
		limit:         limit,
		window:        window,
		cleanupEvery:  100,
		cleanupAtSize: 200,
	}
}

// Allow reports whether another request for key fits in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.allow(key)
	return ok
}

func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	rl.requestCount++
	if rl.requestCount%rl.cleanupEvery == 0 || len(rl.requests) > rl.cleanupAtSize {
		rl.cleanupExpired(now)
		if rl.requestCount >= rl.cleanupEvery*10 {
			rl.requestCount = 0
		}
	}

	b, exists := rl.requests[key]
	if !exists || now.After(b.resetAt) {
		rl.requests[key] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true, 0
	}

	if b.count >= rl.limit {
		return false, b.resetAt.Sub(now)
	}

	b.count++
	return true, 0
}

func (rl *RateLimiter) cleanupExpired(now time.Time) {
	for key, b := range rl.requests {
		if now.After(b.resetAt) {
			delete(rl.requests, key)
		}
	}
}

// Cleanup removes all expired entries from the rate limiter.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanupExpired(time.Now())
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.ClientIP(r)
		ok, wait := rl.allow(key)
		if !ok {
			if rl.OnLimited != nil {
				rl.OnLimited(r, key)
			}
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			_ = WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client address used as the limiter key.
func (rl *RateLimiter) ClientIP(r *http.Request) string {
	if rl.TrustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
