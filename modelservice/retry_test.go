package modelservice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         0.001,
		MaxDelay:          0.01,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServerError{ProviderError: ProviderError{
				ServiceError: ServiceError{Message: "overloaded"},
				Retryable:    true,
			}}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" {
		t.Errorf("expected recovered, got %q", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ProviderError: ProviderError{
			ServiceError: ServiceError{Message: "slow down"},
			Retryable:    true,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Errorf("expected RateLimitError, got %T", err)
	}
	// initial attempt plus MaxRetries
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryDoesNotRetryFatalErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ProviderError: ProviderError{
			ServiceError: ServiceError{Message: "bad key"},
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := fastPolicy()
	policy.BaseDelay = 10 // long enough that cancellation wins the select

	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return "", &NetworkError{ServiceError: ServiceError{Message: "flaky"}}
	})
	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("expected AbortError, got %T", err)
	}
}

func TestDelayBackoff(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		MaxDelay:          4.0,
		BackoffMultiplier: 2.0,
	}
	if got := policy.Delay(0); got != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", got)
	}
	if got := policy.Delay(1); got != 2*time.Second {
		t.Errorf("attempt 1: expected 2s, got %v", got)
	}
	// capped at MaxDelay
	if got := policy.Delay(5); got != 4*time.Second {
		t.Errorf("attempt 5: expected 4s, got %v", got)
	}
}

func TestDelayJitterStaysInRange(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         2.0,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	for i := 0; i < 100; i++ {
		d := policy.Delay(0)
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("jittered delay %v outside [1s, 3s]", d)
		}
	}
}
