package concurrency

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work producing a result of type T.
// The context is cancelled once any task in the same Execute call fails.
type Task[T any] func(ctx context.Context) (T, error)

// Bound is any numeric type accepted as a concurrency bound.
type Bound interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Normalize converts bound into a worker count for n tasks.
// Bounds below 1 (including NaN) become 1, fractional bounds are floored,
// and the result never exceeds n.
func Normalize[B Bound](bound B, n int) int {
	if n <= 0 {
		return 0
	}

	f := float64(bound)
	if math.IsNaN(f) || f < 1 {
		return 1
	}
	if f >= float64(n) {
		return n
	}
	return int(math.Floor(f))
}

// Execute runs tasks with at most bound of them executing at once and returns
// their results in input order: results[i] belongs to tasks[i].
//
// Workers share a single cursor over tasks; each claims the next index,
// runs it and stores its result. Every task runs at most once. The first
// task error is returned and no further tasks are started after it.
// Tasks already running are expected to observe the cancelled context.
func Execute[T any, B Bound](ctx context.Context, tasks []Task[T], bound B) ([]T, error) {
	results := make([]T, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	workers := Normalize(bound, len(tasks))

	var cursor atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	for range workers {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}

				i := int(cursor.Add(1) - 1)
				if i >= len(tasks) {
					return nil
				}

				v, err := tasks[i](gctx)
				if err != nil {
					return err
				}
				results[i] = v
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
