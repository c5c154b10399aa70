package traced

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/tracepool"
	"github.com/xraph/tracepool/resolve"
)

// meterName is the instrumentation scope name for facade metrics.
const meterName = "github.com/xraph/tracepool"

var _ tracepool.Pool = (*Pool)(nil)

// Pool decorates a tracepool.Pool so every unit of work it executes
// carries the submitter's trace context. Submission methods and
// CreateWorker route work through WrapRunnable/WrapCallable; every other
// method forwards to the wrapped pool untouched, so the facade is a
// drop-in replacement wherever the pool itself is used.
//
// The wrapped pool is shared, not owned: it may still be used directly,
// and the facade never changes its queueing, rejection, or scheduling
// behavior.
type Pool struct {
	delegate tracepool.Pool
	name     string
	resolver *resolve.Resolver
	logger   *slog.Logger
	meter    metric.Meter
	metrics  *instruments
}

// Option configures a Pool facade.
type Option func(*Pool)

// WithName sets the span-name hint used for work submitted through the
// facade. Without it, names come from the resolved SpanNamer.
func WithName(name string) Option {
	return func(p *Pool) { p.name = name }
}

// WithLogger sets the facade's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithMeter sets the meter used for facade instrumentation. This variant
// allows injecting a specific MeterProvider for testing; the default is
// the global provider.
func WithMeter(m metric.Meter) Option {
	return func(p *Pool) { p.meter = m }
}

// NewPool creates a decorating facade around delegate. Most callers want
// Wrap instead, which guarantees a single facade per pool.
func NewPool(lookup resolve.Lookup, delegate tracepool.Pool, opts ...Option) *Pool {
	p := &Pool{
		delegate: delegate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.meter == nil {
		p.meter = otel.Meter(meterName)
	}
	p.resolver = resolve.New(lookup, p.logger)
	p.metrics = newInstruments(p.meter)
	return p
}

// Delegate returns the wrapped pool.
func (p *Pool) Delegate() tracepool.Pool { return p.delegate }

// wrapRunnable applies the decoration rules: already-wrapped work and
// work submitted while tracing is unavailable pass through unchanged.
func (p *Pool) wrapRunnable(ctx context.Context, r tracepool.Runnable) tracepool.Runnable {
	if _, ok := r.(*Runnable); ok {
		p.metrics.passthrough(ctx, p.name, reasonAlreadyWrapped)
		return r
	}
	tracer, ok := p.resolver.Tracer()
	if !ok {
		p.metrics.passthrough(ctx, p.name, reasonNotReady)
		return r
	}
	p.metrics.wrapped(ctx, p.name)
	return WrapRunnable(ctx, tracer, p.resolver.SpanNamer(), p.name, r)
}

func (p *Pool) wrapCallable(ctx context.Context, c tracepool.Callable) tracepool.Callable {
	if _, ok := c.(*Callable); ok {
		p.metrics.passthrough(ctx, p.name, reasonAlreadyWrapped)
		return c
	}
	tracer, ok := p.resolver.Tracer()
	if !ok {
		p.metrics.passthrough(ctx, p.name, reasonNotReady)
		return c
	}
	p.metrics.wrapped(ctx, p.name)
	return WrapCallable(ctx, tracer, p.resolver.SpanNamer(), p.name, c)
}

// Execute queues r on the wrapped pool with span propagation.
func (p *Pool) Execute(ctx context.Context, r tracepool.Runnable) error {
	return p.delegate.Execute(ctx, p.wrapRunnable(ctx, r))
}

// Submit queues c on the wrapped pool with span propagation.
func (p *Pool) Submit(ctx context.Context, c tracepool.Callable) (*tracepool.Future, error) {
	return p.delegate.Submit(ctx, p.wrapCallable(ctx, c))
}

// CreateWorker forwards the worker hook with the run loop decorated.
// There is no submission context here, so the spans of work executed by
// the loop itself parent to whatever is active when each task was
// wrapped, not to the worker.
func (p *Pool) CreateWorker(r tracepool.Runnable) error {
	return p.delegate.CreateWorker(p.wrapRunnable(context.Background(), r))
}

// Start starts the wrapped pool.
func (p *Pool) Start(ctx context.Context) error { return p.delegate.Start(ctx) }

// Stop stops the wrapped pool first, then finishes the facade's own
// teardown, so the underlying pool is never left running after the
// facade reports itself stopped.
func (p *Pool) Stop(ctx context.Context) error {
	err := p.delegate.Stop(ctx)
	p.logger.Debug("traced pool stopped",
		slog.String("pool", p.delegate.Name()),
		slog.String("span_name_hint", p.name),
	)
	return err
}

// Configuration pass-throughs.

func (p *Pool) Name() string { return p.delegate.Name() }

func (p *Pool) SetName(name string) { p.delegate.SetName(name) }

func (p *Pool) CoreSize() int { return p.delegate.CoreSize() }

func (p *Pool) SetCoreSize(n int) { p.delegate.SetCoreSize(n) }

func (p *Pool) MaxSize() int { return p.delegate.MaxSize() }

func (p *Pool) SetMaxSize(n int) { p.delegate.SetMaxSize(n) }

func (p *Pool) KeepAlive() time.Duration { return p.delegate.KeepAlive() }

func (p *Pool) SetKeepAlive(d time.Duration) { p.delegate.SetKeepAlive(d) }

func (p *Pool) QueueCapacity() int { return p.delegate.QueueCapacity() }

func (p *Pool) SetQueueCapacity(n int) { p.delegate.SetQueueCapacity(n) }

func (p *Pool) WorkerPrefix() string { return p.delegate.WorkerPrefix() }

func (p *Pool) SetWorkerPrefix(s string) { p.delegate.SetWorkerPrefix(s) }

func (p *Pool) RejectionPolicy() tracepool.RejectionPolicy { return p.delegate.RejectionPolicy() }

func (p *Pool) SetRejectionPolicy(rp tracepool.RejectionPolicy) {
	p.delegate.SetRejectionPolicy(rp)
}

func (p *Pool) TaskDecorator() tracepool.TaskDecorator { return p.delegate.TaskDecorator() }

func (p *Pool) SetTaskDecorator(d tracepool.TaskDecorator) { p.delegate.SetTaskDecorator(d) }

// Introspection pass-throughs.

func (p *Pool) WorkerCount() int { return p.delegate.WorkerCount() }

func (p *Pool) ActiveCount() int { return p.delegate.ActiveCount() }

func (p *Pool) QueueDepth() int { return p.delegate.QueueDepth() }

// Wrap-decision reasons recorded on the passthrough counter.
const (
	reasonAlreadyWrapped = "already_wrapped"
	reasonNotReady       = "not_ready"
)

// instruments records wrap decisions. Instruments are created once at
// facade construction; on error the OTel API returns noop instruments,
// so recording degrades gracefully.
type instruments struct {
	wrappedCount     metric.Int64Counter
	passthroughCount metric.Int64Counter
}

func newInstruments(meter metric.Meter) *instruments {
	wrapped, wErr := meter.Int64Counter(
		"tracepool.tasks.wrapped",
		metric.WithDescription("Units of work decorated with span propagation"),
		metric.WithUnit("{task}"),
	)
	_ = wErr // noop fallback guaranteed by OTel API contract

	passthrough, pErr := meter.Int64Counter(
		"tracepool.tasks.passthrough",
		metric.WithDescription("Units of work passed through undecorated"),
		metric.WithUnit("{task}"),
	)
	_ = pErr // noop fallback guaranteed by OTel API contract

	return &instruments{wrappedCount: wrapped, passthroughCount: passthrough}
}

func (i *instruments) wrapped(ctx context.Context, pool string) {
	i.wrappedCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pool", pool),
	))
}

func (i *instruments) passthrough(ctx context.Context, pool, reason string) {
	i.passthroughCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pool", pool),
		attribute.String("reason", reason),
	))
}
