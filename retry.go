package main

import (
	"fmt"
	"time"
)

// retryOptions controls the bounded exponential-backoff wrapper. Delay
// before attempt n (n ≥ 2) is Delay * Backoff^(n-2).
type retryOptions struct {
	Retries int
	Delay   time.Duration
	Backoff float64
	Label   string

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

func defaultRetryOptions(cfg *Config, label string) retryOptions {
	return retryOptions{
		Retries: cfg.UploadRetries,
		Delay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		Backoff: cfg.RetryBackoffFactor,
		Label:   label,
	}
}

// retryOp invokes fn up to opts.Retries times, backing off between attempts,
// and returns the last error once attempts are exhausted. Flaky one-shot
// browser operations (file-input acquisition, submit clicks) get wrapped in
// this instead of growing inline retry loops.
func retryOp(opts retryOptions, fn func() error) error {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2
	}
	sleep := opts.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	delay := opts.Delay
	var lastErr error

	for attempt := 1; attempt <= opts.Retries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == opts.Retries {
			break
		}
		sleep(delay)
		delay = time.Duration(float64(delay) * opts.Backoff)
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", opts.Label, opts.Retries, lastErr)
}

// retryOpValue is retryOp for operations that produce a value.
func retryOpValue[T any](opts retryOptions, fn func() (T, error)) (T, error) {
	var result T
	err := retryOp(opts, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
