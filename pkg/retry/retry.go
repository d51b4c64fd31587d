package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- fraction of the delay
}

// DefaultConfig returns defaults for store connections at startup:
// 3 retries with 200ms initial delay, capped at 2s, doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// RateLimitConfig returns the delay schedule used between models after an upstream 429.
// Delays grow by 1.5x per attempt from initial and never exceed max. No jitter.
func RateLimitConfig(initial, max time.Duration) *Config {
	return &Config{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   1.5,
	}
}

// Backoff returns the delay before retry number attempt (0-based).
func Backoff(cfg *Config, attempt int) time.Duration {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if attempt < 0 {
		attempt = 0
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return applyJitter(time.Duration(delay), cfg.JitterFactor)
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Sleep waits for d or until ctx is done, whichever comes first.
// Returns ctx.Err() if the context ended the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoWithResult executes fn with exponential backoff, retrying every error,
// and returns the last result and error. Respects context cancellation
// during wait periods.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, fn, func(error) bool { return true })
}

// DoIfRetryable only retries if the error is transient.
// Permanent errors (auth failures, bad requests) are returned immediately.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	}, IsRetryable)
	return err
}

func run[T any](ctx context.Context, cfg *Config, fn func() (T, error), shouldRetry func(error) bool) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}

		lastErr = err
		result = r // Keep last result even on error

		if !shouldRetry(err) {
			return result, err
		}

		if attempt < cfg.MaxRetries {
			if err := Sleep(ctx, Backoff(cfg, attempt)); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}

// RetryableError is an interface for errors that explicitly declare their retryability.
// Upstream completion errors implement this interface.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	// Connection errors
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"i/o timeout",
	"network is unreachable",
	"eof",
	// HTTP status codes
	"429",
	"500",
	"502",
	"503",
	"504",
	// HTTP error messages
	"rate limit",
	"service unavailable",
	"too many requests",
	"cluster_block_exception",
}

// IsRetryable determines if an error is transient and worth retrying.
//
// The function checks errors in this order:
// 1. If the error implements RetryableError, use its IsRetryable() method
// 2. Otherwise, pattern-match against known retryable error strings
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if r, ok := err.(RetryableError); ok {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
