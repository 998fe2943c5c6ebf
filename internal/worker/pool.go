// Package worker provides the bounded concurrency primitives shared by
// enrichment, thread-detail fetches and close actions.
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Result pairs one task outcome with its input index.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Run applies fn to every item with at most limit simultaneous invocations.
// Each task's error is collected independently; one failure never aborts
// its siblings. Results are returned in input order.
func Run[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) []Result[R] {
	if limit <= 0 {
		limit = 1
	}
	results := make([]Result[R], len(items))
	sem := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup
	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// context canceled: remaining tasks fail fast
			for j := i; j < len(items); j++ {
				results[j] = Result[R]{Index: j, Err: err}
			}
			break
		}
		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()
			defer sem.Release(1)
			value, err := fn(ctx, it)
			results[idx] = Result[R]{Index: idx, Value: value, Err: err}
		}(i, item)
	}
	wg.Wait()
	return results
}
