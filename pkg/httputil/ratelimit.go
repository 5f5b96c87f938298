package httputil

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
	// MaxClients bounds the number of tracked clients
	MaxClients int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
		BurstSize:         10,
		MaxClients:        1024,
	}
}

// RateLimiter keeps one token bucket per client key. Idle clients expire
// after two windows.
type RateLimiter struct {
	config  RateLimitConfig
	every   rate.Limit
	buckets *lru.LRU[string, *rate.Limiter]
}

// NewRateLimiter creates a rate limiter, filling unset fields from the defaults
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	d := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = d.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = d.WindowDuration
	}
	if config.BurstSize < 0 {
		config.BurstSize = 0
	}
	if config.MaxClients <= 0 {
		config.MaxClients = d.MaxClients
	}

	return &RateLimiter{
		config:  config,
		every:   rate.Every(config.WindowDuration / time.Duration(config.RequestsPerWindow)),
		buckets: lru.NewLRU[string, *rate.Limiter](config.MaxClients, nil, 2*config.WindowDuration),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.buckets.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.every, rl.config.RequestsPerWindow+rl.config.BurstSize)
	rl.buckets.Add(key, l)
	return l
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Remaining returns the number of whole tokens left for a key
func (rl *RateLimiter) Remaining(key string) int {
	l, ok := rl.buckets.Peek(key)
	if !ok {
		return rl.config.RequestsPerWindow + rl.config.BurstSize
	}
	return int(math.Max(0, math.Floor(l.Tokens())))
}

// Middleware rejects clients over their budget with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerWindow))
		if !rl.Allow(key) {
			retryAfter := fmt.Sprintf("%.0f", math.Ceil(1/float64(rl.every)))
			w.Header().Set("Retry-After", retryAfter)
			w.Header().Set("X-RateLimit-Remaining", "0")
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded", map[string]string{"retry_after": retryAfter})
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.Remaining(key)))
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the client address, preferring proxy headers
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
