// Package retry runs collaborator calls under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy bounds how often and how patiently a call is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Backoff is the wait before the first retry; it doubles after each one.
	Backoff time.Duration
	// MaxBackoff caps a single wait. Zero means 8x Backoff.
	MaxBackoff time.Duration
}

// NoRetry calls once.
var NoRetry = Policy{Attempts: 1}

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (p Policy) backoff() goretry.Backoff {
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}
	capped := p.MaxBackoff
	if capped <= 0 {
		capped = 8 * base
	}
	b := goretry.NewExponential(base)
	b = goretry.WithCappedDuration(capped, b)
	return goretry.WithMaxRetries(uint64(max(p.Attempts-1, 0)), b)
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// done, or the attempts are used up. The last error is returned unwrapped
// from any retry marker.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		// Only the caller's context ends the loop. A timeout of the call's
		// own making is an ordinary failure.
		if ctx.Err() != nil {
			return err
		}
		return goretry.RetryableError(err)
	})
	return err
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
