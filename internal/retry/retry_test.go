package retry

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	t.Parallel()

	var attempts int32
	err := Do(context.Background(), DefaultConfig(), "test-op", func(_ context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var attempts int32
	cfg := Config{Interval: 5 * time.Millisecond, MaxAttempts: 5}

	err := Do(context.Background(), cfg, "test-retry", func(_ context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("not ready")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDoExhaustsMaxAttempts(t *testing.T) {
	t.Parallel()

	var attempts int32
	cfg := Config{Interval: time.Millisecond, MaxAttempts: 3}

	err := Do(context.Background(), cfg, "test-exhaust", func(_ context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("still down")
	})

	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !strings.Contains(err.Error(), "gave up after 3 attempts") {
		t.Errorf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDoPermanentErrorStopsEarly(t *testing.T) {
	t.Parallel()

	var attempts int32
	sentinel := errors.New("bad config")
	cfg := Config{Interval: time.Millisecond, MaxAttempts: 5}

	err := Do(context.Background(), cfg, "test-permanent", func(_ context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return Permanent(sentinel)
	})

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestDoHonorsCancellationDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{Interval: time.Minute, MaxAttempts: 3}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, "test-cancel", func(_ context.Context) error {
			return errors.New("not ready")
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return promptly after cancellation")
	}
}
