package framework

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryConfig controls the backoff wrapper around remote model calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Buffer is added on top of any server-suggested wait.
	Buffer time.Duration
	// OnRetry observes each retry attempt before the wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig matches the behavior expected by interactive use:
// three retries, one second base, capped at thirty seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Buffer:     500 * time.Millisecond,
	}
}

// WithRetry runs op, retrying transient failures with exponential backoff.
// Errors outside the transient set are returned immediately without
// consuming a retry. Exhausting retries returns the last error.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}
		delay := backoffDelay(cfg, attempt)
		if IsRateLimit(err) {
			if wait, ok := SuggestedWait(err.Error()); ok {
				delay = wait + cfg.Buffer
			}
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << uint(attempt)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

var transientSignatures = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
	"timeout",
	"deadline exceeded",
	"connection reset",
}

// IsTransient reports whether an error matches a known transient failure
// signature: rate limit, 5xx, timeout, or connection reset.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether the error looks like a rate-limit rejection.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

var (
	retryAfterRe = regexp.MustCompile(`(?i)retry after (\d+(?:\.\d+)?)\s*s`)
	tryAgainRe   = regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)\s*s`)
)

// SuggestedWait parses a server-suggested wait time out of a rate-limit
// error message. Two formats are recognized: "retry after Ns" and
// "try again in N seconds".
func SuggestedWait(msg string) (time.Duration, bool) {
	for _, re := range []*regexp.Regexp{retryAfterRe, tryAgainRe} {
		if m := re.FindStringSubmatch(msg); m != nil {
			secs, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}
