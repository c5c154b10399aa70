package tracepool

import "context"

// Runnable is a fire-and-forget unit of work. The context carries
// whatever ambient state the executing pool provides, including the
// active span when the pool is decorated by package traced.
type Runnable interface {
	Run(ctx context.Context)
}

// Callable is a value-returning unit of work.
type Callable interface {
	Call(ctx context.Context) (any, error)
}

// RunnableFunc adapts a plain function to the Runnable interface.
type RunnableFunc func(ctx context.Context)

// Run calls f(ctx).
func (f RunnableFunc) Run(ctx context.Context) { f(ctx) }

// CallableFunc adapts a plain function to the Callable interface.
type CallableFunc func(ctx context.Context) (any, error)

// Call calls f(ctx).
func (f CallableFunc) Call(ctx context.Context) (any, error) { return f(ctx) }

// TaskDecorator transforms units of work before a pool queues them.
// Pools apply the configured decorator to every accepted Runnable.
type TaskDecorator func(Runnable) Runnable
