// Package executor runs independent tasks under a concurrency cap with
// retry and exponential backoff.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Options controls task execution.
type Options struct {
	// Concurrency is the maximum number of tasks in flight. Values < 1
	// are treated as 1.
	Concurrency int

	// MaxRetries is how many times a failed task is re-attempted after
	// its first failure.
	MaxRetries int

	// BaseDelay seeds the backoff: delay = BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// RetryIf decides whether an error is worth retrying. Nil retries
	// every error.
	RetryIf func(error) bool
}

// Result is the outcome of one task. Callers decide whether a single
// failed task aborts the whole phase or is reported independently.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int // total attempts made, including the first
}

// sleepFn is swapped in tests to observe backoff without waiting.
var sleepFn = sleepCtx

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Map runs fn over items with at most Concurrency tasks in flight and
// returns results positionally aligned to items, regardless of completion
// order. Each worker writes only its own index, so no locking is needed.
func Map[I, T any](ctx context.Context, items []I, opts Options, fn func(context.Context, I) (T, error)) []Result[T] {
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]Result[T], len(items))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, it I) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = runWithRetry(ctx, opts, it, fn)
		}(i, item)
	}

	wg.Wait()
	return results
}

func runWithRetry[I, T any](ctx context.Context, opts Options, item I, fn func(context.Context, I) (T, error)) Result[T] {
	var res Result[T]
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1

		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		value, err := fn(ctx, item)
		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}
		res.Err = err

		if attempt >= opts.MaxRetries {
			return res
		}
		if opts.RetryIf != nil && !opts.RetryIf(err) {
			return res
		}

		// A fired deadline during backoff is final, never retried.
		if err := sleepFn(ctx, Backoff(opts.BaseDelay, attempt)); err != nil {
			res.Err = fmt.Errorf("%w (last error: %v)", err, res.Err)
			return res
		}
	}
}

// Backoff returns BaseDelay * 2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * (1 << attempt)
}

// FirstError returns the first task error in input order, or nil if every
// task succeeded. For callers that want fail-fast semantics.
func FirstError[T any](results []Result[T]) error {
	for i, r := range results {
		if r.Err != nil {
			return fmt.Errorf("task %d: %w", i, r.Err)
		}
	}
	return nil
}

// Values extracts the task values, valid only when FirstError is nil.
func Values[T any](results []Result[T]) []T {
	values := make([]T, len(results))
	for i, r := range results {
		values[i] = r.Value
	}
	return values
}
