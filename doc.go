// Package tracepool defines the worker-pool contract decorated by this
// module. A Pool accepts units of work (fire-and-forget Runnables and
// value-returning Callables) for asynchronous execution on a bounded set
// of worker goroutines.
//
// The submitting goroutine and the executing goroutine are different, so
// any trace span active at submission time is invisible when the work
// finally runs. Package traced closes that gap: it wraps a Pool in a
// decorating facade that captures the submitter's span context when work
// is handed over and opens a child span on the worker for the duration of
// each task.
//
// # Quick Start
//
//	pool := pooltest.New(pooltest.WithCoreSize(4))
//	_ = pool.Start(ctx)
//
//	p := traced.Wrap(lookup, pool)
//	fut, _ := p.Submit(ctx, tracepool.CallableFunc(func(ctx context.Context) (any, error) {
//	    return loadReport(ctx)
//	}))
//
// This package holds only the contracts; see package traced for the
// decorator and package resolve for how the tracer is obtained from the
// hosting environment.
package tracepool
