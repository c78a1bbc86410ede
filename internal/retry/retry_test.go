package retry

import (
	"context"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/bungee-cli/internal/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(5), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Fatalf("expected single successful call, got %q after %d calls", got, calls)
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, clierr.New(clierr.CodeUnavailable, "provider unavailable")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", calls)
	}
	if got != 42 {
		t.Fatalf("unexpected value: %d", got)
	}
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(4), func(context.Context) (int, error) {
		calls++
		return 0, clierr.New(clierr.CodeRateLimited, "rate limited")
	})
	if calls != 4 {
		t.Fatalf("expected exactly 4 invocations, got %d", calls)
	}
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeRateLimited {
		t.Fatalf("expected final rate-limited error, got %v", err)
	}
}

func TestDoDoesNotRetryFatalErrors(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, clierr.New(clierr.CodeValidation, "quote mismatch")
	})
	if calls != 1 {
		t.Fatalf("expected fatal error to stop retries, got %d calls", calls)
	}
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeValidation {
		t.Fatalf("expected validation error unchanged, got %v", err)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, clierr.New(clierr.CodeUnavailable, "unavailable")
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got %d calls", calls)
	}
}

func TestBackoffWidensAndCaps(t *testing.T) {
	p := Policy{Attempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	if d := p.Backoff(1); d != 100*time.Millisecond {
		t.Fatalf("unexpected first backoff: %v", d)
	}
	if d := p.Backoff(2); d != 200*time.Millisecond {
		t.Fatalf("unexpected second backoff: %v", d)
	}
	if d := p.Backoff(10); d != 300*time.Millisecond {
		t.Fatalf("expected capped backoff, got %v", d)
	}
}
