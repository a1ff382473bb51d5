package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func quickConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quickConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quickConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("solver timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	// MaxRetries 3 means 4 attempts total
	calls := 0
	wrapped := errors.New("always broken")
	err := Do(context.Background(), quickConfig(), func() error {
		calls++
		return wrapped
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 4 {
		t.Errorf("fn called %d times, want 4", calls)
	}
	// The last error stays reachable through the wrap
	if !errors.Is(err, wrapped) {
		t.Errorf("underlying error lost: %v", err)
	}
}

func TestDoOnRetryCallback(t *testing.T) {
	// The callback fires once per follow-up attempt, not for the attempt
	// that succeeds and not after the budget is spent.
	cfg := quickConfig()
	notified := 0
	cfg.OnRetry = func(attempt int, err error) {
		notified++
		if err == nil {
			t.Error("OnRetry called with nil error")
		}
	}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("solver timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notified != 2 {
		t.Errorf("OnRetry called %d times, want 2", notified)
	}

	// Exhausted budget: 4 attempts, 3 of them followed by another try
	notified = 0
	_ = Do(context.Background(), cfg, func() error {
		return errors.New("always broken")
	})
	if notified != 3 {
		t.Errorf("OnRetry called %d times after exhaustion, want 3", notified)
	}
}

func TestDoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, quickConfig(), func() error {
		calls++
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if calls != 0 {
		t.Errorf("fn called %d times after cancellation, want 0", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		// Stuck or crashed solver processes are transient
		{errors.New("solver timeout after 5m0s"), true},
		{errors.New("signal: killed"), true},
		{fmt.Errorf("solver failed: %w", errors.New("broken pipe")), true},
		{errors.New("resource temporarily unavailable"), true},
		// Case problems will fail the same way every time
		{errors.New("solver reported: mesh generation failed"), false},
		{errors.New("model document missing"), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
