// Package retry runs blocking calls under a bounded attempt budget with
// exponential backoff and a per-attempt timeout.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobkb/internal/kb"
	"jobkb/internal/logger"
)

// Policy bounds one retried call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Timeout applies to each attempt separately. Zero disables it.
	Timeout time.Duration
}

// DefaultPolicy is three attempts starting at 200ms, capped at 5s, with a 20s
// deadline per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Timeout:     20 * time.Second,
	}
}

// Delay returns the backoff before attempt+1 (attempt is zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt > 16 {
		attempt = 16
	}
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget runs out, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return err
		}

		err = call(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if !kb.IsRetryable(err) || attempt == attempts-1 {
			return err
		}

		wait := p.Delay(attempt)
		if hint := kb.RetryAfter(err); hint > wait {
			wait = hint
		}
		logger.Debug("retry: %s attempt %d/%d failed, waiting %s: %v", op, attempt+1, attempts, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(attemptCtx)
	// A deadline hit by this attempt alone is a timeout, not a caller cancel.
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
	}
	return err
}
