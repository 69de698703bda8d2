package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps login attempts per client IP over a sliding window.
type RateLimiter struct {
	authAttempts map[string][]time.Time // IP -> timestamps of auth attempts
	mu           sync.Mutex
	maxAuth      int
	window       time.Duration
	now          func() time.Time
}

func New(maxAuth int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		authAttempts: make(map[string][]time.Time),
		maxAuth:      maxAuth,
		window:       window,
		now:          time.Now,
	}
}

// Run drops expired attempts every window until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for ip, attempts := range rl.authAttempts {
		valid := recent(attempts, cutoff)
		if len(valid) == 0 {
			delete(rl.authAttempts, ip)
		} else {
			rl.authAttempts[ip] = valid
		}
	}
}

func recent(attempts []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, t := range attempts {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// Allow records an attempt from ip and reports whether it is within
// the limit. Rejected attempts are not recorded.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.maxAuth <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	attempts := recent(rl.authAttempts[ip], now.Add(-rl.window))
	if len(attempts) >= rl.maxAuth {
		rl.authAttempts[ip] = attempts
		return false
	}
	rl.authAttempts[ip] = append(attempts, now)
	return true
}

func (rl *RateLimiter) Limit() int {
	return rl.maxAuth
}

// Middleware answers 429 once a client exceeds the limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", retryAfter(rl.window))
			http.Error(w, "Too many login attempts, try again later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfter(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ClientIP prefers proxy headers, then the connection's remote address.
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
