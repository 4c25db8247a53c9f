package governor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelMap runs fn for units 0..n-1 on at most workers goroutines. Results
// and errors are stored by unit index, so completion order never leaks into
// the output. A failing unit does not stop the others; units that have not
// started when ctx ends report ctx's error.
func ParallelMap[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, []error) {
	results := make([]T, n)
	errs := make([]error, n)
	if n == 0 {
		return results, errs
	}
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = context.Cause(ctx)
				return nil
			}
			results[i], errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
