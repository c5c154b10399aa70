// Package traced propagates trace context across the worker-pool
// boundary. It decorates units of work so that the span active on the
// submitting goroutine becomes the parent of a new span opened on the
// worker that executes the task, and wraps whole pools in a facade that
// applies the decoration to everything they run.
//
// # Wrapping a pool
//
//	p := traced.Wrap(lookup, pool)
//
// Wrap is process-wide and identity-keyed: every call for the same pool
// returns the same facade. The facade behaves exactly like the wrapped
// pool; the only addition is a span opened before each task runs and
// closed when it finishes, on every exit path.
//
// Decoration is lazy and fault tolerant. The tracer is pulled from the
// resolve.Lookup on first use; while the hosting environment cannot
// supply one, work passes through undecorated and submissions never
// fail. A missing span namer logs one warning and falls back to
// resolve.DefaultSpanNamer.
package traced
