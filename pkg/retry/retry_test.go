package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetrier_Do_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("Do() err = %v, want nil", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Do() attempts = %d, want 3", result.Attempts)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	transient := errors.New("transient")
	result := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		return transient
	})

	if !errors.Is(result.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Do() err = %v, want max retries exceeded", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Do() attempts = %d, want 3", result.Attempts)
	}
	if !errors.Is(result.LastError, transient) {
		t.Errorf("Do() last error = %v, want %v", result.LastError, transient)
	}
}

func TestRetrier_Do_PermanentErrorStops(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return Permanent(permanent)
	})

	if !errors.Is(result.Err, permanent) {
		t.Errorf("Do() err = %v, want %v", result.Err, permanent)
	}
	if calls != 1 {
		t.Errorf("permanent error retried %d times", calls)
	}
}

func TestRetrier_Do_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		return errors.New("should not matter")
	})

	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Do() err = %v, want context canceled", result.Err)
	}
}
