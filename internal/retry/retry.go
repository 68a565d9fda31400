// Package retry wraps fallible operations with configurable
// fixed or exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Backoff selects the delay growth policy between attempts.
type Backoff int

const (
	// Fixed waits BaseDelay between every attempt.
	Fixed Backoff = iota
	// Exponential doubles the delay each attempt with up to 30% jitter,
	// capped at MaxDelay.
	Exponential
)

// Config controls a retried operation.
type Config struct {
	MaxAttempts int
	Backoff     Backoff
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// RetryOn, when set, decides whether an error is retryable. A false
	// result rethrows immediately without consuming an attempt.
	RetryOn func(error) bool

	// OnRetry is invoked before each retry with the attempt number just
	// failed and the delay about to be slept.
	OnRetry func(attempt int, delay time.Duration)

	// OnExhausted is invoked once when all attempts are spent.
	OnExhausted func(err error)
}

// DefaultConfig is the executor's baseline: three attempts with
// exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     Exponential,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Result is the outcome of a DoResult call. It never carries both a value
// and an error.
type Result[T any] struct {
	Success  bool
	Value    T
	Err      error
	Attempts int
}

// Do runs op until it succeeds, a non-retryable error occurs, the ctx is
// canceled, or attempts are exhausted. The last error is returned.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if cfg.RetryOn != nil && !cfg.RetryOn(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Delay(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	if cfg.OnExhausted != nil {
		cfg.OnExhausted(lastErr)
	}
	return zero, lastErr
}

// DoResult never returns an error; the outcome, last error, and attempt
// count are reported in the Result.
func DoResult[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) Result[T] {
	attempts := 0
	v, err := DoValue(ctx, cfg, func(ctx context.Context) (T, error) {
		attempts++
		return op(ctx)
	})
	if err != nil {
		return Result[T]{Err: err, Attempts: attempts}
	}
	return Result[T]{Success: true, Value: v, Attempts: attempts}
}

// Wrap returns a retrying version of op with the same signature.
func Wrap(cfg Config, op func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return Do(ctx, cfg, op)
	}
}

// Delay computes the sleep before the retry following the given attempt
// (1-based). Exponential delays carry up to 30% random jitter and are
// capped at MaxDelay.
func Delay(cfg Config, attempt int) time.Duration {
	if cfg.Backoff == Fixed {
		return cfg.BaseDelay
	}

	d := cfg.BaseDelay << uint(attempt-1)
	if d <= 0 { // shift overflow
		d = cfg.MaxDelay
	}
	d += time.Duration(rand.Int63n(int64(d)/10*3 + 1))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
