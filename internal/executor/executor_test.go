package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSleep replaces backoff waits for the duration of a test and records
// each requested delay.
func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var mu sync.Mutex
	delays := &[]time.Duration{}
	prev := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*delays = append(*delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	t.Cleanup(func() { sleepFn = prev })
	return delays
}

func TestMapPositionalOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	results := Map(context.Background(), items, Options{Concurrency: 4}, func(ctx context.Context, n int) (string, error) {
		// Later items finish first to prove output order is positional.
		time.Sleep(time.Duration(len(items)-n) * time.Millisecond)
		return fmt.Sprintf("item-%d", n), nil
	})

	require.Len(t, results, len(items))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("item-%d", i), r.Value)
	}
}

func TestMapConcurrencyCap(t *testing.T) {
	for _, limit := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("cap %d", limit), func(t *testing.T) {
			var inFlight, peak int64
			items := make([]int, 20)

			Map(context.Background(), items, Options{Concurrency: limit}, func(ctx context.Context, _ int) (struct{}, error) {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return struct{}{}, nil
			})

			assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
		})
	}
}

func TestMapRetry(t *testing.T) {
	t.Run("retries up to the cap then surfaces the error", func(t *testing.T) {
		noSleep(t)
		var calls int64
		boom := errors.New("boom")

		results := Map(context.Background(), []int{1}, Options{MaxRetries: 3, BaseDelay: time.Millisecond}, func(ctx context.Context, _ int) (int, error) {
			atomic.AddInt64(&calls, 1)
			return 0, boom
		})

		require.Len(t, results, 1)
		assert.ErrorIs(t, results[0].Err, boom)
		assert.Equal(t, int64(4), atomic.LoadInt64(&calls)) // 1 + 3 retries
		assert.Equal(t, 4, results[0].Attempts)
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		noSleep(t)
		var calls int64

		results := Map(context.Background(), []int{1}, Options{MaxRetries: 5, BaseDelay: time.Millisecond}, func(ctx context.Context, _ int) (string, error) {
			if atomic.AddInt64(&calls, 1) < 3 {
				return "", errors.New("flaky")
			}
			return "ok", nil
		})

		require.NoError(t, results[0].Err)
		assert.Equal(t, "ok", results[0].Value)
		assert.Equal(t, 3, results[0].Attempts)
	})

	t.Run("RetryIf false stops immediately", func(t *testing.T) {
		noSleep(t)
		var calls int64
		fatal := errors.New("malformed")

		results := Map(context.Background(), []int{1}, Options{
			MaxRetries: 5,
			RetryIf:    func(err error) bool { return !errors.Is(err, fatal) },
		}, func(ctx context.Context, _ int) (int, error) {
			atomic.AddInt64(&calls, 1)
			return 0, fatal
		})

		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
		assert.ErrorIs(t, results[0].Err, fatal)
	})

	t.Run("per-task failures do not affect other tasks", func(t *testing.T) {
		noSleep(t)
		results := Map(context.Background(), []int{0, 1, 2}, Options{Concurrency: 3}, func(ctx context.Context, n int) (int, error) {
			if n == 1 {
				return 0, errors.New("middle task failed")
			}
			return n * 10, nil
		})

		assert.NoError(t, results[0].Err)
		assert.Error(t, results[1].Err)
		assert.NoError(t, results[2].Err)
		assert.Equal(t, 20, results[2].Value)
	})
}

func TestBackoffSequence(t *testing.T) {
	delays := noSleep(t)
	base := 10 * time.Millisecond

	Map(context.Background(), []int{1}, Options{MaxRetries: 4, BaseDelay: base}, func(ctx context.Context, _ int) (int, error) {
		return 0, errors.New("always fails")
	})

	require.Len(t, *delays, 4)
	want := []time.Duration{base, 2 * base, 4 * base, 8 * base}
	assert.Equal(t, want, *delays)

	for i := 1; i < len(*delays); i++ {
		assert.GreaterOrEqual(t, (*delays)[i], (*delays)[i-1], "backoff must be non-decreasing")
	}
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int64
	results := Map(ctx, []int{1}, Options{MaxRetries: 3}, func(ctx context.Context, _ int) (int, error) {
		atomic.AddInt64(&calls, 1)
		return 0, errors.New("should not retry")
	})

	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.LessOrEqual(t, atomic.LoadInt64(&calls), int64(1))
}

func TestFirstErrorAndValues(t *testing.T) {
	ok := []Result[int]{{Value: 1}, {Value: 2}}
	require.NoError(t, FirstError(ok))
	assert.Equal(t, []int{1, 2}, Values(ok))

	bad := []Result[int]{{Value: 1}, {Err: errors.New("nope")}}
	err := FirstError(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task 1")
}
