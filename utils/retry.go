package utils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryPolicy describes how an operation is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first one. Must be at least 1.
	MaxAttempts int
	// Delay is the wait before the second attempt.
	Delay time.Duration
	// Backoff multiplies the delay after every failed attempt; values below 1
	// shrink it. Zero means 1 (constant delay).
	Backoff float64
	// RetryIf selects the errors worth retrying. Nil retries every error.
	RetryIf func(error) bool
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns 3 attempts starting at one second and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     2.0,
	}
}

// Validate reports whether the policy can be used.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return invalidArgument("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return invalidArgument("delay cannot be negative, got %s", p.Delay)
	}
	if p.Backoff < 0 || math.IsNaN(p.Backoff) || math.IsInf(p.Backoff, 0) {
		return invalidArgument("backoff must be a finite non-negative value, got %v", p.Backoff)
	}
	return nil
}

// DelayFor returns the wait that follows the given failed attempt (1-based).
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.Delay <= 0 || attempt < 1 {
		return 0
	}
	backoff := p.Backoff
	if backoff == 0 {
		backoff = 1
	}
	scaled := float64(p.Delay) * math.Pow(backoff, float64(attempt-1))
	if scaled >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(scaled)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.RetryIf == nil {
		return true
	}
	return p.RetryIf(err)
}

// Wrap returns op guarded by the policy.
func (p RetryPolicy) Wrap(op func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Retry(ctx, p, op)
	}
}

// Retry calls op until it succeeds, returns an error the policy does not
// retry, or runs out of attempts. Waiting between attempts honours ctx.
func Retry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !policy.retryable(err) {
			return err
		}
		if attempt >= policy.MaxAttempts {
			return &RetryExhaustedError{Attempts: attempt, Err: err}
		}

		delay := policy.DelayFor(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if waitErr := sleep(ctx, delay); waitErr != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, errors.Join(waitErr, err))
		}
	}
}

// RetryWithResult is Retry for operations that produce a value.
func RetryWithResult[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := Retry(ctx, policy, func(ctx context.Context) error {
		value, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}
		result = value
		return nil
	})
	return result, err
}

// RetryOn builds a RetryIf matching any of targets with errors.Is.
func RetryOn(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
