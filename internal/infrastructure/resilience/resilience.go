// Package resilience wraps Fortify retry, circuit breaker and rate limiting
// for the outbound HTTP clients.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// Config configures the resilience patterns of one client.
type Config struct {
	// Rate limiting
	RateLimitRPM int // Requests per minute (0 = disabled)

	// Retry configuration. Zero or one attempt disables retries.
	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	// Circuit breaker
	CircuitBreakerEnabled     bool
	CircuitBreakerThreshold   int           // failures before opening
	CircuitBreakerTimeout     time.Duration // how long to stay open
	CircuitBreakerMaxRequests int           // requests allowed in half-open
}

// Policy runs operations returning T under the configured patterns.
type Policy[T any] struct {
	name           string
	rateLimiter    ratelimit.RateLimiter
	retrier        retry.Retry[T]
	circuitBreaker circuitbreaker.CircuitBreaker[T]
}

// New creates a policy. name keys the rate limiter bucket.
func New[T any](name string, cfg Config) *Policy[T] {
	p := &Policy[T]{name: name}

	if cfg.RateLimitRPM > 0 {
		p.rateLimiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimitRPM,
			Burst:    cfg.RateLimitRPM,
			Interval: time.Minute,
		})
	}

	if cfg.RetryAttempts > 1 {
		initial := cfg.RetryInitialWait
		if initial == 0 {
			initial = 200 * time.Millisecond
		}
		maxWait := cfg.RetryMaxWait
		if maxWait == 0 {
			maxWait = 5 * time.Second
		}
		p.retrier = retry.New[T](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  initial,
			MaxDelay:      maxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   IsRetryable,
		})
	}

	if cfg.CircuitBreakerEnabled {
		threshold := max(cfg.CircuitBreakerThreshold, 1)
		p.circuitBreaker = circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: uint32(max(cfg.CircuitBreakerMaxRequests, 1)), // #nosec G115 -- bounded config value
			Interval:    cfg.CircuitBreakerTimeout,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		})
	}

	return p
}

// Execute runs the operation with all configured patterns.
// Order: Rate Limit → Circuit Breaker → Retry → Operation
func (p *Policy[T]) Execute(ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	if p == nil {
		return operation(ctx)
	}

	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx, p.name); err != nil {
			var zero T
			return zero, err
		}
	}

	if p.circuitBreaker != nil {
		return p.circuitBreaker.Execute(ctx, func(ctx context.Context) (T, error) {
			return p.executeWithRetry(ctx, operation)
		})
	}
	return p.executeWithRetry(ctx, operation)
}

func (p *Policy[T]) executeWithRetry(ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	if p.retrier != nil {
		return p.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// CircuitBreakerState returns "closed", "half-open", "open", or "disabled".
func (p *Policy[T]) CircuitBreakerState() string {
	if p == nil || p.circuitBreaker == nil {
		return "disabled"
	}
	return p.circuitBreaker.State().String()
}

// Close releases resources held by the policy.
func (p *Policy[T]) Close() error {
	if p == nil || p.rateLimiter == nil {
		return nil
	}
	return p.rateLimiter.Close()
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsRetryable reports whether an error is worth retrying: throttling, server
// errors and transport failures are; client errors and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return IsRetryableHTTPStatus(se.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsRetryableHTTPStatus returns true for HTTP status codes worth retrying.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	default:
		return false
	}
}
