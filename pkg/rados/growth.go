package rados

import (
	"context"

	"github.com/objectfs/rados/pkg/errors"
)

// grow calls attempt with a capacity starting at initial and doubling each
// time the backend reports overflow, up to ceiling. Any other outcome of
// attempt is returned as is.
func grow[T any](ctx context.Context, c *Cluster, op string, initial, ceiling int, attempt func(n int) (T, error)) (T, error) {
	var zero T
	n := initial
	for {
		v, err := attempt(n)
		if !errors.IsOverflow(err) {
			return v, err
		}
		if n >= ceiling {
			return zero, errors.Newf(errors.ErrCodeSizeExceeded, "%s result exceeds %d", op, ceiling).
				WithComponent(component).
				WithOperation(op).
				WithDetail("ceiling", ceiling).
				WithCause(err)
		}
		if err := ctx.Err(); err != nil {
			return zero, canceled(op, err)
		}
		next := ceiling
		if n <= ceiling/2 {
			next = n * 2
		}
		c.metrics.RecordOverflowRetry(op)
		c.logger.Warn("buffer too small, retrying", "op", op, "size", n, "next", next)
		n = next
	}
}
