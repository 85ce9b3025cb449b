package reservation

import (
	"context"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"time"
)

// retry runs attempt until it succeeds, fails with a non-retryable error, or
// the attempt budget is spent. Busy and Conflict are retried with jittered
// exponential backoff. Each attempt is bounded by the lease.
func retry[T any](ctx context.Context, c *Coordinator, op string, attempt func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.Retry.BaseDelay
	b.MaxInterval = c.opts.Retry.MaxDelay

	n := 0
	return backoff.Retry(ctx, func() (T, error) {
		n++
		actx, cancel := context.WithTimeout(ctx, c.opts.Lease)
		defer cancel()

		v, err := attempt(actx)
		if err == nil {
			return v, nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return v, err
		}
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !Retryable(err) {
			err = fmt.Errorf("%w: lease expired: %w", ErrConflict, err)
		}
		if !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		c.inst.retried(ctx, op)
		c.log.Debug("attempt failed, retrying",
			zap.String("op", op), zap.Int("attempt", n), zap.Error(err))
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.Retry.Attempts)),
		backoff.WithMaxElapsedTime(time.Duration(c.opts.Retry.Attempts)*(c.opts.Lease+c.opts.Retry.MaxDelay)),
	)
}
