// Package middleware holds the HTTP middleware chain: rate limiting,
// authentication, cron gating and request metrics.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// FixedWindowLimiter counts hits per key in fixed windows.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	limit   int
	now     func() time.Time
}

type bucket struct {
	hits int
	ts   time.Time
}

var _ Limiter = (*FixedWindowLimiter)(nil)

// NewFixedWindowLimiter allows limit requests per key per window.
func NewFixedWindowLimiter(window time.Duration, limit int) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		buckets: make(map[string]*bucket),
		window:  window,
		limit:   limit,
		now:     time.Now,
	}
}

// Allow records a hit and reports whether the key is still within its
// window budget.
func (l *FixedWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{ts: now}
		l.buckets[key] = b
	}
	if now.Sub(b.ts) > l.window {
		b.hits = 0
		b.ts = now
	}
	b.hits++
	return b.hits <= l.limit
}

// ClientIP extracts the caller address: first hop of X-Forwarded-For, then
// the remote address host, then "local".
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "local"
}

// RateLimit rejects requests over the per-IP-and-path budget with a 429.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r) + ":" + r.URL.Path
			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"ok":    false,
					"error": "Too many requests. Please wait a few seconds.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
