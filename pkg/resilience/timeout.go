package resilience

import (
	"context"
	"fmt"
	"time"
)

// ErrTimedOut wraps context.DeadlineExceeded when WithTimeout gives up.
var ErrTimedOut = fmt.Errorf("timed out: %w", context.DeadlineExceeded)

// WithTimeout waits at most timeout for fn. fn keeps running in the
// background after a timeout, so it must honor the context it is given. A
// non-positive timeout calls fn directly.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, fmt.Errorf("%w after %v", ErrTimedOut, timeout)
		}
		return zero, ctx.Err()
	}
}
