package service

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how long the verifier polls the chain for a
// transaction that may not be indexed yet. The interval is fixed.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultRetryPolicy is ten attempts two seconds apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Interval: 2 * time.Second}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent marks err as not worth retrying
func permanent(err error) error {
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, attempts run
// out or ctx is done. It returns the last error fn returned, unwrapped from
// permanent, or ctx.Err() if the context ended first.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if attempt == attempts {
			break
		}
		if p.Interval > 0 {
			timer := time.NewTimer(p.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return err
}
