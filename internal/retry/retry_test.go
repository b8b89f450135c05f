package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}

	calls := 0
	start := time.Now()
	got, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	// Two sleeps: base + 2*base = 30ms. Allow generous upper bound for CI.
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 30ms (backoff not applied)", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, unexpectedly long", elapsed)
	}
}

func TestDo_ExhaustsAttemptsReturnsLastError(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond}

	lastErr := errors.New("attempt 3 failed")
	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls == 3 {
			return 0, lastErr
		}
		return 0, errors.New("earlier failure")
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if err == nil {
		t.Fatal("Do() error = nil, want wrapped last error")
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("Do() error = %v, want to wrap %v", err, lastErr)
	}
}

func TestDo_NoSleepOnImmediateSuccess(t *testing.T) {
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Second}

	start := time.Now()
	got, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %d, want 42", got)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("elapsed = %v, success should not sleep", elapsed)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	start := time.Now()
	_, err := Do(ctx, cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("always fails")
	})

	if err == nil {
		t.Fatal("Do() error = nil, want cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancelled during first backoff)", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("elapsed = %v, cancellation should be prompt", elapsed)
	}
}

func TestDoIf_NonRetryableStopsImmediately(t *testing.T) {
	cfg := Config{MaxAttempts: 5, BaseDelay: time.Millisecond}

	fatal := errors.New("bad input")
	calls := 0
	_, err := DoIf(context.Background(), cfg,
		func(err error) bool { return !errors.Is(err, fatal) },
		func(ctx context.Context) (int, error) {
			calls++
			return 0, fatal
		})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("DoIf() error = %v, want %v", err, fatal)
	}
}

func TestConfig_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		attempt int
		want    time.Duration
	}{
		{"first_retry", Config{BaseDelay: time.Second}, 0, time.Second},
		{"second_retry_doubles", Config{BaseDelay: time.Second}, 1, 2 * time.Second},
		{"third_retry_quadruples", Config{BaseDelay: time.Second}, 2, 4 * time.Second},
		{"capped_at_max", Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second}, 4, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
