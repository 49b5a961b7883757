// Package dispatch runs gateway operations either to completion on the caller's
// goroutine or as background tasks that hand back a Future.
//
// The mode is always chosen explicitly: Run blocks, Go and Submit return a pending
// Future, and Invoke follows the context (see InTask).
package dispatch

import (
	"context"
	"fmt"
)

// Op is one gateway operation.
type Op[T any] func(ctx context.Context) (T, error)

// Future is the eventual result of an Op. It resolves exactly once.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(v, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the result is ready or ctx ends. Giving up on ctx does not
// cancel the operation; it keeps running under its own deadline.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type taskKey struct{}

// WithTask marks ctx as belonging to a background task.
func WithTask(ctx context.Context) context.Context {
	return context.WithValue(ctx, taskKey{}, true)
}

// InTask reports whether ctx was marked by WithTask. It has no side effects.
func InTask(ctx context.Context) bool {
	v, _ := ctx.Value(taskKey{}).(bool)
	return v
}

// Run executes op on the calling goroutine and returns its result.
func Run[T any](ctx context.Context, op Op[T]) (T, error) {
	return call(ctx, op)
}

// Go starts op in its own goroutine and returns a pending Future.
func Go[T any](ctx context.Context, op Op[T]) *Future[T] {
	return Submit(nil, ctx, op)
}

// Submit is Go bounded by p. A nil pool does not bound anything.
func Submit[T any](p *Pool, ctx context.Context, op Op[T]) *Future[T] {
	f := newFuture[T]()
	tctx := WithTask(ctx)
	go func() {
		if p != nil {
			if err := p.acquire(tctx); err != nil {
				var zero T
				f.resolve(zero, err)
				return
			}
			defer p.release()
		}
		f.resolve(call(tctx, op))
	}()
	return f
}

// Invoke blocks outside a task context and returns a resolved Future.
// Inside a task context it returns a pending Future without blocking.
func Invoke[T any](ctx context.Context, op Op[T]) *Future[T] {
	if InTask(ctx) {
		return Go(ctx, op)
	}
	return Resolved(Run(ctx, op))
}

func call[T any](ctx context.Context, op Op[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: operation panicked: %v", r)
		}
	}()
	return op(ctx)
}
