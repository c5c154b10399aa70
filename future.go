package tracepool

import (
	"context"
	"sync/atomic"
)

// Future holds the eventual result of a Callable submitted to a Pool.
// It is created by the pool at submission time and resolved exactly once
// by the worker that executes the task.
type Future struct {
	done     chan struct{}
	resolved atomic.Bool
	value    any
	err      error
}

// NewFuture creates an unresolved Future. Pool implementations call this
// in Submit; application code normally only reads from a Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete resolves the future with the task's result. A second call
// returns ErrFutureResolved and leaves the first result in place.
func (f *Future) Complete(value any, err error) error {
	if !f.resolved.CompareAndSwap(false, true) {
		return ErrFutureResolved
	}
	f.value = value
	f.err = err
	close(f.done)
	return nil
}

// Done returns a channel that is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Get blocks until the result is available or ctx is done. The returned
// error is the task's own error, untouched, once the task has run.
func (f *Future) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
