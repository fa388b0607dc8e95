package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/breatheroute/roadpulse/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// RequestLimit is the number of requests allowed per window.
	RequestLimit int
	// WindowLength is the window duration.
	WindowLength time.Duration
}

var (
	// ReadRateLimit applies to read endpoints polled by the map UI (240 req/min).
	ReadRateLimit = RateLimitConfig{RequestLimit: 240, WindowLength: time.Minute}

	// WriteRateLimit applies to endpoints that trigger a data load (60 req/min).
	WriteRateLimit = RateLimitConfig{RequestLimit: 60, WindowLength: time.Minute}
)

// RateLimitByIP creates a rate limiter keyed by the client IP address.
// Run chi's RealIP middleware first to honor X-Forwarded-For.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

// limitExceeded writes a 429 problem. httprate does not expose the reset
// time, so Retry-After is one full window.
func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, try again later")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
