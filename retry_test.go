package main

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetryOpSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retryOp(retryOptions{
		Retries: 3,
		Delay:   time.Millisecond,
		Backoff: 2,
		Label:   "flaky op",
		sleep:   func(time.Duration) {},
	}, func() error {
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

func TestRetryOpStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := retryOp(retryOptions{
		Retries: 5,
		Delay:   time.Millisecond,
		Backoff: 2,
		sleep:   func(time.Duration) {},
	}, func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryOpExhaustion(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0

	err := retryOp(retryOptions{
		Retries: 3,
		Delay:   time.Millisecond,
		Backoff: 2,
		Label:   "submit click",
		sleep:   func(time.Duration) {},
	}, func() error {
		calls++
		return sentinel
	})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("exhaustion error should wrap the last failure, got: %v", err)
	}
	if !strings.Contains(err.Error(), "submit click") {
		t.Errorf("exhaustion error should name the operation, got: %v", err)
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("exhaustion error should report the attempt count, got: %v", err)
	}
}

func TestRetryOpBackoffSequence(t *testing.T) {
	var delays []time.Duration
	_ = retryOp(retryOptions{
		Retries: 4,
		Delay:   100 * time.Millisecond,
		Backoff: 2,
		sleep:   func(d time.Duration) { delays = append(delays, d) },
	}, func() error {
		return errors.New("always fails")
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %d: %v", len(want), len(delays), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestRetryOpValue(t *testing.T) {
	calls := 0
	v, err := retryOpValue(retryOptions{
		Retries: 3,
		Delay:   time.Millisecond,
		Backoff: 2,
		sleep:   func(time.Duration) {},
	}, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}
