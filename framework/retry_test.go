package framework

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestWithRetryNonTransientImmediate(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("invalid api key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("non-transient error consumed retries: %d calls", calls)
	}
}

func TestWithRetryTransientEventuallySucceeds(t *testing.T) {
	calls := 0
	out, err := WithRetry(context.Background(), fastConfig(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("503 service unavailable")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Fatalf("out=%q calls=%d", out, calls)
	}
}

func TestWithRetryExhaustionReturnsLastError(t *testing.T) {
	cfg := fastConfig()
	attempts := 0
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) { attempts = attempt }
	_, err := WithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, errors.New("connection reset by peer")
	})
	if err == nil || err.Error() != "connection reset by peer" {
		t.Fatalf("want last error, got %v", err)
	}
	if attempts != cfg.MaxRetries {
		t.Fatalf("observer saw %d attempts, want %d", attempts, cfg.MaxRetries)
	}
}

func TestSuggestedWaitFormats(t *testing.T) {
	if d, ok := SuggestedWait("rate limit exceeded, retry after 2s"); !ok || d != 2*time.Second {
		t.Fatalf("retry-after format: %v %v", d, ok)
	}
	if d, ok := SuggestedWait("too many requests, try again in 5 seconds"); !ok || d != 5*time.Second {
		t.Fatalf("try-again format: %v %v", d, ok)
	}
	if _, ok := SuggestedWait("no hint here"); ok {
		t.Fatal("parsed wait from message without one")
	}
}

func TestIsTransientSignatures(t *testing.T) {
	transient := []string{
		"429 too many requests",
		"server returned 502",
		"request timeout",
		"read: connection reset by peer",
	}
	for _, msg := range transient {
		if !IsTransient(errors.New(msg)) {
			t.Fatalf("%q should be transient", msg)
		}
	}
	if IsTransient(errors.New("file not found")) {
		t.Fatal("permanent error classified transient")
	}
}

func TestSuggestedWaitOnlyForRateLimits(t *testing.T) {
	cfg := fastConfig()
	cfg.Buffer = time.Millisecond
	var delays []time.Duration
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		delays = append(delays, delay)
	}

	calls := 0
	_, err := WithRetry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("429 rate limit, retry after 0.002s")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delays) != 1 || delays[0] != 2*time.Millisecond+cfg.Buffer {
		t.Fatalf("rate limit should use the suggested wait plus buffer, got %v", delays)
	}

	// A 5xx mentioning a wait is not a rate limit; backoff applies.
	delays = nil
	calls = 0
	_, err = WithRetry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("503 overloaded, try again in 30 seconds")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delays) != 1 || delays[0] != cfg.BaseDelay {
		t.Fatalf("non-rate-limit error must use backoff, got %v", delays)
	}
}
