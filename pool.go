package tracepool

import (
	"context"
	"time"
)

// RejectionPolicy controls what a pool does with work submitted while
// its queue is at capacity.
type RejectionPolicy int

const (
	// RejectError fails the submission with ErrPoolSaturated. The pool
	// may first grow surplus workers up to its maximum size.
	RejectError RejectionPolicy = iota
	// RejectBlock blocks the submitter until queue space frees up or the
	// submission context is done.
	RejectBlock
	// RejectDiscard silently drops the submitted work.
	RejectDiscard
)

// String returns the policy name.
func (p RejectionPolicy) String() string {
	switch p {
	case RejectError:
		return "error"
	case RejectBlock:
		return "block"
	case RejectDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Pool is the worker-pool contract. Implementations queue accepted work
// and execute it on a bounded set of worker goroutines.
//
// Pool is the surface that traced.Pool decorates: submission methods and
// CreateWorker route work through the span decorator there, everything
// else is forwarded untouched. Anything that accepts a Pool accepts the
// decorated facade in its place.
type Pool interface {
	// Execute queues r for asynchronous execution. ctx covers the
	// submission only (queue-full blocking); it is not the context the
	// task eventually runs with.
	Execute(ctx context.Context, r Runnable) error

	// Submit queues c and returns a Future resolved with c's result.
	Submit(ctx context.Context, c Callable) (*Future, error)

	// CreateWorker launches a worker goroutine whose run loop is r.
	// Pools call it themselves when spinning up workers; it is part of
	// the interface so decorators can intercept the run loop.
	CreateWorker(r Runnable) error

	// Lifecycle.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Configuration. Mutators apply while the pool is stopped; values
	// read back exactly as written.
	Name() string
	SetName(name string)
	CoreSize() int
	SetCoreSize(n int)
	MaxSize() int
	SetMaxSize(n int)
	KeepAlive() time.Duration
	SetKeepAlive(d time.Duration)
	QueueCapacity() int
	SetQueueCapacity(n int)
	WorkerPrefix() string
	SetWorkerPrefix(prefix string)
	RejectionPolicy() RejectionPolicy
	SetRejectionPolicy(p RejectionPolicy)
	TaskDecorator() TaskDecorator
	SetTaskDecorator(d TaskDecorator)

	// Introspection.
	WorkerCount() int
	ActiveCount() int
	QueueDepth() int
}
