// Package retry runs operations under a backoff schedule.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FatalError marks a failure that no amount of waiting will fix.
type FatalError interface {
	error
	IsFatal() bool
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) IsFatal() bool {
	return true
}

func (e *fatalError) Unwrap() error {
	return e.err
}

func NewFatalError(err error) FatalError {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Notify is called after a failed attempt, before waiting next.
type Notify func(attempt int, err error, next time.Duration)

// Policy bounds Retry. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Retry calls fn until it succeeds, returns a FatalError, ctx is done or
// policy.MaxAttempts calls have failed. Waits grow exponentially.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	b := backoff.WithMaxRetries(
		backoff.WithContext(ExponentialBackoff(policy), ctx),
		uint64(policy.MaxAttempts-1),
	)
	return run(fn, b, nil, nil)
}

// Forever calls fn every interval until it succeeds, fn returns a
// FatalError, or ctx is done. There is no attempt limit and the interval
// never grows. A nil timer uses the system clock.
func Forever(ctx context.Context, interval time.Duration, fn func() error, onRetry Notify, timer backoff.Timer) error {
	return run(fn, backoff.WithContext(ConstantBackoff(interval), ctx), onRetry, timer)
}

func run(fn func() error, b backoff.BackOff, onRetry Notify, timer backoff.Timer) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		var fatal FatalError
		if errors.As(err, &fatal) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, next time.Duration) {
			onRetry(attempt, err, next)
		}
	}

	return backoff.RetryNotifyWithTimer(operation, b, notify, timer)
}
