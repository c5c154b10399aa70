package traced_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/tracepool"
	"github.com/xraph/tracepool/pooltest"
	"github.com/xraph/tracepool/resolve"
	"github.com/xraph/tracepool/traced"
)

// fakeLookup serves a canned tracer and namer.
type fakeLookup struct {
	tracer    any
	namer     any
	tracerErr error
	namerErr  error
}

func (l *fakeLookup) Resolve(c resolve.Capability) (any, error) {
	switch c {
	case resolve.CapabilityTracer:
		if l.tracerErr != nil {
			return nil, l.tracerErr
		}
		if l.tracer == nil {
			return nil, resolve.ErrNotRegistered
		}
		return l.tracer, nil
	case resolve.CapabilitySpanNamer:
		if l.namerErr != nil {
			return nil, l.namerErr
		}
		if l.namer == nil {
			return nil, resolve.ErrNotRegistered
		}
		return l.namer, nil
	default:
		return nil, resolve.ErrNotRegistered
	}
}

// recordingPool captures what the facade hands to the delegate.
type recordingPool struct {
	*pooltest.Pool
	mu        sync.Mutex
	runnables []tracepool.Runnable
	callables []tracepool.Callable
	workers   []tracepool.Runnable
	stops     int
}

func newRecordingPool() *recordingPool {
	return &recordingPool{Pool: pooltest.New(pooltest.WithCoreSize(1))}
}

func (p *recordingPool) Execute(ctx context.Context, r tracepool.Runnable) error {
	p.mu.Lock()
	p.runnables = append(p.runnables, r)
	p.mu.Unlock()
	return p.Pool.Execute(ctx, r)
}

func (p *recordingPool) Submit(ctx context.Context, c tracepool.Callable) (*tracepool.Future, error) {
	p.mu.Lock()
	p.callables = append(p.callables, c)
	p.mu.Unlock()
	return p.Pool.Submit(ctx, c)
}

func (p *recordingPool) CreateWorker(r tracepool.Runnable) error {
	p.mu.Lock()
	p.workers = append(p.workers, r)
	p.mu.Unlock()
	return p.Pool.CreateWorker(r)
}

func (p *recordingPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	return p.Pool.Stop(ctx)
}

func (p *recordingPool) lastRunnable(t *testing.T) tracepool.Runnable {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.runnables) == 0 {
		t.Fatal("delegate received no runnables")
	}
	return p.runnables[len(p.runnables)-1]
}

func startedPool(t *testing.T, opts ...pooltest.Option) *pooltest.Pool {
	t.Helper()
	pool := pooltest.New(opts...)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})
	return pool
}

func TestPool_SubmitPropagatesParent(t *testing.T) {
	sr, tracer := setupTestTracer()
	delegate := startedPool(t, pooltest.WithCoreSize(2))

	p := traced.NewPool(&fakeLookup{tracer: tracer}, delegate)

	submitCtx, parent := tracer.Start(context.Background(), "parent")

	var taskSpanCtx trace.SpanContext
	fut, err := p.Submit(submitCtx, tracepool.CallableFunc(func(ctx context.Context) (any, error) {
		taskSpanCtx = trace.SpanFromContext(ctx).SpanContext()
		return 42, nil
	}))
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	getCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := fut.Get(getCtx)
	if err != nil {
		t.Fatalf("future error: %v", err)
	}
	if v != 42 {
		t.Errorf("result = %v, want 42", v)
	}

	// The submitter's own active span is untouched by the round trip.
	if got := trace.SpanFromContext(submitCtx); got != parent {
		t.Error("submitting context's active span changed")
	}
	parent.End()

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans (task + parent), got %d", len(spans))
	}
	task := spans[0]
	if !taskSpanCtx.IsValid() {
		t.Fatal("expected an active span during task execution")
	}
	if task.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("task span is not a child of the span active at submission")
	}
	if task.SpanContext().TraceID() != parent.SpanContext().TraceID() {
		t.Error("task span left the submitter's trace")
	}
}

func TestPool_NotReadyPassesWorkThrough(t *testing.T) {
	sr, _ := setupTestTracer()

	delegate := newRecordingPool()
	if err := delegate.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	defer delegate.Stop(context.Background())

	p := traced.NewPool(&fakeLookup{tracerErr: resolve.ErrNotReady}, delegate)

	work := &flagRunnable{}
	if err := p.Execute(context.Background(), work); err != nil {
		t.Fatalf("execute error: %v", err)
	}

	if got := delegate.lastRunnable(t); got != tracepool.Runnable(work) {
		t.Error("expected the original unit of work, undecorated")
	}

	deadline := time.After(2 * time.Second)
	for !work.ran.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for task to run")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if got := len(sr.Ended()); got != 0 {
		t.Errorf("expected no spans for undecorated work, got %d", got)
	}
}

func TestPool_DoubleWrapAcrossEntryPoints(t *testing.T) {
	_, tracer := setupTestTracer()

	delegate := newRecordingPool()
	if err := delegate.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	defer delegate.Stop(context.Background())

	p := traced.NewPool(&fakeLookup{tracer: tracer}, delegate)

	// First entry point decorates.
	if err := p.Execute(context.Background(), &flagRunnable{}); err != nil {
		t.Fatalf("execute error: %v", err)
	}
	decorated := delegate.lastRunnable(t)
	if _, ok := decorated.(*traced.Runnable); !ok {
		t.Fatalf("expected decorated work, got %T", decorated)
	}

	// Second entry point must pass the decorated unit through unchanged.
	if err := p.CreateWorker(decorated); err != nil {
		t.Fatalf("create worker error: %v", err)
	}
	delegate.mu.Lock()
	got := delegate.workers[len(delegate.workers)-1]
	delegate.mu.Unlock()
	if got != decorated {
		t.Error("expected the already-decorated unit unchanged through CreateWorker")
	}
}

func TestPool_PassThroughFidelity(t *testing.T) {
	_, tracer := setupTestTracer()
	delegate := pooltest.New()
	p := traced.NewPool(&fakeLookup{tracer: tracer}, delegate)

	p.SetName("ingest")
	p.SetCoreSize(3)
	p.SetMaxSize(9)
	p.SetKeepAlive(45 * time.Second)
	p.SetQueueCapacity(128)
	p.SetWorkerPrefix("ingest-")
	p.SetRejectionPolicy(tracepool.RejectBlock)

	dec := func(r tracepool.Runnable) tracepool.Runnable { return r }
	p.SetTaskDecorator(dec)

	checks := []struct {
		name           string
		facade, direct any
	}{
		{"Name", p.Name(), delegate.Name()},
		{"CoreSize", p.CoreSize(), delegate.CoreSize()},
		{"MaxSize", p.MaxSize(), delegate.MaxSize()},
		{"KeepAlive", p.KeepAlive(), delegate.KeepAlive()},
		{"QueueCapacity", p.QueueCapacity(), delegate.QueueCapacity()},
		{"WorkerPrefix", p.WorkerPrefix(), delegate.WorkerPrefix()},
		{"RejectionPolicy", p.RejectionPolicy(), delegate.RejectionPolicy()},
	}
	for _, c := range checks {
		if c.facade != c.direct {
			t.Errorf("%s: facade reads %v, delegate holds %v", c.name, c.facade, c.direct)
		}
	}

	if delegate.Name() != "ingest" {
		t.Errorf("delegate name = %q, want %q", delegate.Name(), "ingest")
	}
	if delegate.TaskDecorator() == nil || p.TaskDecorator() == nil {
		t.Error("task decorator did not pass through")
	}

	// Mutating the delegate directly is visible through the facade.
	delegate.SetCoreSize(5)
	if p.CoreSize() != 5 {
		t.Errorf("facade CoreSize = %d, want 5 after direct mutation", p.CoreSize())
	}
}

func TestPool_NamerFallbackWarnsOnce(t *testing.T) {
	sr, tracer := setupTestTracer()
	delegate := startedPool(t, pooltest.WithCoreSize(1))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := traced.NewPool(&fakeLookup{tracer: tracer}, delegate, traced.WithLogger(logger))

	for range 3 {
		fut, err := p.Submit(context.Background(), tracepool.CallableFunc(func(context.Context) (any, error) {
			return nil, nil
		}))
		if err != nil {
			t.Fatalf("submit error: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := fut.Get(ctx); err != nil {
			cancel()
			t.Fatalf("future error: %v", err)
		}
		cancel()
	}

	if got := strings.Count(buf.String(), "span namer not registered"); got != 1 {
		t.Errorf("missing-namer warning logged %d times, want 1", got)
	}
	for _, span := range sr.Ended() {
		if span.Name() == "" {
			t.Error("expected default naming to produce a non-empty span name")
		}
	}
	if got := len(sr.Ended()); got != 3 {
		t.Errorf("expected 3 spans, got %d", got)
	}
}

func TestPool_StopStopsDelegate(t *testing.T) {
	_, tracer := setupTestTracer()
	delegate := newRecordingPool()
	if err := delegate.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	p := traced.NewPool(&fakeLookup{tracer: tracer}, delegate)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	delegate.mu.Lock()
	stops := delegate.stops
	delegate.mu.Unlock()
	if stops != 1 {
		t.Errorf("delegate Stop called %d times, want 1", stops)
	}
	if err := delegate.Pool.Execute(context.Background(), &flagRunnable{}); err != tracepool.ErrPoolStopped {
		t.Errorf("expected delegate stopped after facade Stop, got %v", err)
	}
}

func TestPool_WrapDecisionMetrics(t *testing.T) {
	_, tracer := setupTestTracer()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	delegate := newRecordingPool()
	if err := delegate.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	defer delegate.Stop(context.Background())

	p := traced.NewPool(&fakeLookup{tracer: tracer}, delegate, traced.WithMeter(meter))

	// One wrapped submission, then the decorated unit resubmitted.
	if err := p.Execute(context.Background(), &flagRunnable{}); err != nil {
		t.Fatalf("execute error: %v", err)
	}
	if err := p.Execute(context.Background(), delegate.lastRunnable(t)); err != nil {
		t.Fatalf("execute error: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect error: %v", err)
	}

	sums := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			sums[m.Name] = total
		}
	}

	if sums["tracepool.tasks.wrapped"] != 1 {
		t.Errorf("wrapped count = %d, want 1", sums["tracepool.tasks.wrapped"])
	}
	if sums["tracepool.tasks.passthrough"] != 1 {
		t.Errorf("passthrough count = %d, want 1", sums["tracepool.tasks.passthrough"])
	}
}
