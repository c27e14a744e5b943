package parallel

import (
	"context"
	"sync"
)

// ForEach runs fn for every item on the pool and waits for all of them.
// Items are split into at most Workers() chunks so a large batch does not
// flood the queue. It returns the first submission error; fn errors are
// collected per item.
func ForEach[T any](ctx context.Context, wp *WorkerPool, items []T, fn func(context.Context, T) error) ([]error, error) {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs, nil
	}

	// overflow-safe ceiling division
	chunkSize := int((int64(len(items)) + int64(wp.workers) - 1) / int64(wp.workers))
	if chunkSize < 1 {
		chunkSize = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < len(items); i += chunkSize {
		end := min(i+chunkSize, len(items))
		lo := i

		wg.Add(1)
		err := wp.Submit(ctx, func(context.Context) {
			defer wg.Done()
			for j := lo; j < end; j++ {
				if ctx.Err() != nil {
					errs[j] = ctx.Err()
					continue
				}
				errs[j] = fn(ctx, items[j])
			}
		})
		if err != nil {
			wg.Done()
			for j := lo; j < len(items); j++ {
				errs[j] = err
			}
			wg.Wait()
			return errs, err
		}
	}
	wg.Wait()
	return errs, nil
}
