package traced

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/tracepool"
	"github.com/xraph/tracepool/resolve"
)

// defaultSpanName is handed to the namer when nothing better is known.
const defaultSpanName = "async"

// wrapper holds what a decorated unit of work needs at run time. The
// parent span context is captured when the work is wrapped, on the
// submitting goroutine; that capture is what carries the trace across
// the pool boundary.
type wrapper struct {
	tracer trace.Tracer
	namer  resolve.SpanNamer
	name   string
	parent trace.SpanContext
}

func newWrapper(ctx context.Context, tracer trace.Tracer, namer resolve.SpanNamer, name string) wrapper {
	return wrapper{
		tracer: tracer,
		namer:  namer,
		name:   name,
		parent: trace.SpanContextFromContext(ctx),
	}
}

// start opens the task span. The worker's own context is kept (so pool
// cancellation still reaches the delegate) and re-parented under the
// span context captured at wrap time.
func (w wrapper) start(ctx context.Context, work any) (context.Context, trace.Span) {
	if w.parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, w.parent)
	}
	return w.tracer.Start(ctx, w.spanName(work), trace.WithSpanKind(trace.SpanKindInternal))
}

func (w wrapper) spanName(work any) string {
	if w.name != "" {
		return w.name
	}
	return w.namer.Name(work, defaultSpanName)
}

// Runnable is a fire-and-forget unit of work decorated with span
// propagation. Wrapping is idempotent: WrapRunnable returns an existing
// *Runnable unchanged, so work flowing through several decorating entry
// points (Submit plus a worker hook) is bracketed by exactly one span.
type Runnable struct {
	wrapper
	delegate tracepool.Runnable
}

// WrapRunnable decorates r so that running it opens a span parented to
// the span active in ctx at wrap time. If r is already decorated it is
// returned as-is.
func WrapRunnable(ctx context.Context, tracer trace.Tracer, namer resolve.SpanNamer, name string, r tracepool.Runnable) tracepool.Runnable {
	if _, ok := r.(*Runnable); ok {
		return r
	}
	return &Runnable{
		wrapper:  newWrapper(ctx, tracer, namer, name),
		delegate: r,
	}
}

// Run opens the span, hands it to the delegate through the context, and
// closes it when the delegate returns.
func (t *Runnable) Run(ctx context.Context) {
	ctx, span := t.start(ctx, t.delegate)
	defer span.End()
	t.delegate.Run(ctx)
}

// Unwrap returns the undecorated unit of work.
func (t *Runnable) Unwrap() tracepool.Runnable { return t.delegate }

// Callable is a value-returning unit of work decorated with span
// propagation. See Runnable for the idempotence guarantee.
type Callable struct {
	wrapper
	delegate tracepool.Callable
}

// WrapCallable decorates c the way WrapRunnable decorates a Runnable.
func WrapCallable(ctx context.Context, tracer trace.Tracer, namer resolve.SpanNamer, name string, c tracepool.Callable) tracepool.Callable {
	if _, ok := c.(*Callable); ok {
		return c
	}
	return &Callable{
		wrapper:  newWrapper(ctx, tracer, namer, name),
		delegate: c,
	}
}

// Call opens the span, runs the delegate, records a failure on the span,
// and returns the delegate's result untouched. The span is closed on
// every path.
func (t *Callable) Call(ctx context.Context) (any, error) {
	ctx, span := t.start(ctx, t.delegate)
	defer span.End()

	v, err := t.delegate.Call(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return v, err
	}
	span.SetStatus(codes.Ok, "")
	return v, nil
}

// Unwrap returns the undecorated unit of work.
func (t *Callable) Unwrap() tracepool.Callable { return t.delegate }
