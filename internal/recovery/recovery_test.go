package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), nil, "op", 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := WithRetry(context.Background(), nil, "download", 2, time.Millisecond, func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if !strings.Contains(err.Error(), "download") {
		t.Errorf("expected operation name in %q", err)
	}
}

func TestWithRetry_RecoversPanic(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), nil, "op", 1, time.Millisecond, func(context.Context) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := WithRetry(ctx, nil, "op", 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || time.Since(start) > time.Second {
		t.Errorf("expected prompt return after one call, got %d calls", calls)
	}
}
