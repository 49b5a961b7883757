// File: internal/infra/dispatch/pool.go
package dispatch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many submitted operations are in flight at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), size: workers}
}

func (p *Pool) Size() int { return p.size }

func (p *Pool) acquire(ctx context.Context) error { return p.sem.Acquire(ctx, 1) }

func (p *Pool) release() { p.sem.Release(1) }

// All waits for every future and returns their values in order.
// The first error wins and stops the wait.
func All[T any](ctx context.Context, fs ...*Future[T]) ([]T, error) {
	out := make([]T, len(fs))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fs {
		i, f := i, f
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
