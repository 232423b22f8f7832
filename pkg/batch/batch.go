// Package batch runs independent per-item work with bounded concurrency.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run calls fn for every item with at most limit calls in flight and
// returns the results in input order. Items are isolated: fn reports
// failure through its result, so one item never cancels the others.
func Run[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, index int, item T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(WorkerCount(limit, len(items)))

	for i, item := range items {
		g.Go(func() error {
			results[i] = fn(ctx, i, item)
			return nil
		})
	}

	g.Wait()
	return results
}

// WorkerCount clamps limit to [1, n].
func WorkerCount(limit, n int) int {
	return max(min(limit, n), 1)
}
