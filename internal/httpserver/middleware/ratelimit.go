package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
)

// RateLimiter limits requests per client address with a token bucket.
type RateLimiter struct {
	limiter ratelimit.RateLimiter
}

// NewRateLimiter allows rpm requests per minute per client, with bursts of
// the same size.
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		limiter: ratelimit.New(&ratelimit.Config{
			Rate:     rpm,
			Burst:    rpm,
			Interval: time.Minute,
		}),
	}
}

// Handler returns the middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow(r.Context(), clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close stops the limiter.
func (rl *RateLimiter) Close() error {
	return rl.limiter.Close()
}

// clientKey strips the port; RealIP has already rewritten RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
