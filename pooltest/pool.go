// Package pooltest provides an in-memory tracepool.Pool implementation
// for exercising pool decorators in tests. It honors the full Pool
// contract (bounded queue, core and surplus workers, keep-alive,
// rejection policies, worker hook, task-decorator hook) without any
// external dependencies, the way httptest stands in for a real server.
package pooltest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/xraph/tracepool"
)

var _ tracepool.Pool = (*Pool)(nil)

// Pool is an in-memory worker pool. Configuration mutators apply while
// the pool is stopped and take effect on the next Start.
type Pool struct {
	mu        sync.Mutex
	name      string
	core      int
	max       int
	keepAlive time.Duration
	capacity  int
	prefix    string
	policy    tracepool.RejectionPolicy
	decorator tracepool.TaskDecorator

	clock  clockz.Clock
	logger *slog.Logger

	running bool
	queue   chan tracepool.Runnable
	stopCh  chan struct{}
	wg      sync.WaitGroup
	workers atomic.Int64
	active  atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithName sets the pool name used in logs.
func WithName(name string) Option {
	return func(p *Pool) { p.name = name }
}

// WithCoreSize sets the number of core workers started with the pool.
func WithCoreSize(n int) Option {
	return func(p *Pool) { p.core = n }
}

// WithMaxSize sets the worker ceiling reached via surplus workers.
func WithMaxSize(n int) Option {
	return func(p *Pool) { p.max = n }
}

// WithKeepAlive sets how long a surplus worker stays alive without work.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Pool) { p.keepAlive = d }
}

// WithQueueCapacity sets the task queue capacity.
func WithQueueCapacity(n int) Option {
	return func(p *Pool) { p.capacity = n }
}

// WithRejectionPolicy sets what happens when the queue is full.
func WithRejectionPolicy(rp tracepool.RejectionPolicy) Option {
	return func(p *Pool) { p.policy = rp }
}

// WithWorkerPrefix sets the prefix of generated worker identifiers.
func WithWorkerPrefix(prefix string) Option {
	return func(p *Pool) { p.prefix = prefix }
}

// WithClock sets the clock used for keep-alive timing. Tests pass
// clockz.NewFakeClock() to drive surplus-worker expiry deterministically.
func WithClock(c clockz.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New creates a pool. It does not run until Start is called.
func New(opts ...Option) *Pool {
	p := &Pool{
		name:      "pooltest",
		core:      2,
		max:       4,
		keepAlive: time.Minute,
		capacity:  16,
		prefix:    "worker-",
		clock:     clockz.RealClock,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the core workers. It returns immediately; a second
// Start on a running pool is a no-op.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.queue = make(chan tracepool.Runnable, p.capacity)
	p.stopCh = make(chan struct{})

	p.logger.Info("pool starting",
		slog.String("pool", p.name),
		slog.Int("core_workers", p.core),
		slog.Int("queue_capacity", p.capacity),
	)

	for range p.core {
		p.spawnLocked(p.coreLoop(p.queue, p.stopCh))
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish, or
// until ctx is done. A second Stop is a no-op.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh := p.stopCh
	p.mu.Unlock()

	p.logger.Info("pool stopping", slog.String("pool", p.name))
	close(stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("pool stopped", slog.String("pool", p.name))
		return nil
	case <-ctx.Done():
		p.logger.Warn("pool shutdown timed out", slog.String("pool", p.name))
		return ctx.Err()
	}
}

// Execute queues r for asynchronous execution.
func (p *Pool) Execute(ctx context.Context, r tracepool.Runnable) error {
	if r == nil {
		return tracepool.ErrNilWork
	}
	return p.enqueue(ctx, r)
}

// Submit queues c and returns a Future resolved with its result.
func (p *Pool) Submit(ctx context.Context, c tracepool.Callable) (*tracepool.Future, error) {
	if c == nil {
		return nil, tracepool.ErrNilWork
	}
	fut := tracepool.NewFuture()
	r := tracepool.RunnableFunc(func(ctx context.Context) {
		_ = fut.Complete(c.Call(ctx))
	})
	if err := p.enqueue(ctx, r); err != nil {
		return nil, err
	}
	return fut, nil
}

// CreateWorker launches a worker goroutine whose run loop is r. The pool
// uses it for its own core and surplus workers; decorators intercept it
// to wrap the loop.
func (p *Pool) CreateWorker(r tracepool.Runnable) error {
	if r == nil {
		return tracepool.ErrNilWork
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return tracepool.ErrPoolStopped
	}
	p.spawnLocked(r)
	return nil
}

// enqueue applies the task-decorator hook and the rejection policy.
func (p *Pool) enqueue(ctx context.Context, r tracepool.Runnable) error {
	p.mu.Lock()
	running, queue, stopCh := p.running, p.queue, p.stopCh
	policy, dec := p.policy, p.decorator
	p.mu.Unlock()

	if !running {
		return tracepool.ErrPoolStopped
	}
	if dec != nil {
		r = dec(r)
	}

	switch policy {
	case tracepool.RejectBlock:
		select {
		case queue <- r:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return tracepool.ErrPoolStopped
		}

	case tracepool.RejectDiscard:
		select {
		case queue <- r:
		default:
			p.logger.Debug("task discarded, queue full", slog.String("pool", p.name))
		}
		return nil

	default: // RejectError
		select {
		case queue <- r:
			return nil
		default:
		}
		// Queue full: grow a surplus worker if the ceiling allows, then
		// hand the task over once it starts pulling.
		if p.growSurplus() {
			select {
			case queue <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-stopCh:
				return tracepool.ErrPoolStopped
			}
		}
		return fmt.Errorf("%w: pool %q at capacity %d", tracepool.ErrPoolSaturated, p.name, cap(queue))
	}
}

// growSurplus starts one surplus worker if the pool is below max.
func (p *Pool) growSurplus() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || int(p.workers.Load()) >= p.max {
		return false
	}
	p.spawnLocked(p.surplusLoop(p.queue, p.stopCh))
	return true
}

// spawnLocked launches a worker goroutine. Callers hold p.mu.
func (p *Pool) spawnLocked(loop tracepool.Runnable) {
	workerID := p.prefix + uuid.NewString()[:8]
	p.workers.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.workers.Add(-1)
		p.logger.Debug("worker started",
			slog.String("pool", p.name),
			slog.String("worker_id", workerID),
		)
		loop.Run(context.Background())
		p.logger.Debug("worker exited",
			slog.String("pool", p.name),
			slog.String("worker_id", workerID),
		)
	}()
}

// coreLoop is the run loop of a core worker. It lives until the pool
// stops.
func (p *Pool) coreLoop(queue chan tracepool.Runnable, stopCh chan struct{}) tracepool.Runnable {
	return tracepool.RunnableFunc(func(ctx context.Context) {
		for {
			select {
			case <-stopCh:
				return
			case r := <-queue:
				p.runTask(ctx, r)
			}
		}
	})
}

// surplusLoop is the run loop of a surplus worker. It exits after
// keepAlive without work.
func (p *Pool) surplusLoop(queue chan tracepool.Runnable, stopCh chan struct{}) tracepool.Runnable {
	keepAlive := p.keepAlive
	return tracepool.RunnableFunc(func(ctx context.Context) {
		for {
			select {
			case <-stopCh:
				return
			case r := <-queue:
				p.runTask(ctx, r)
			case <-p.clock.After(keepAlive):
				return
			}
		}
	})
}

// runTask executes one unit of work, containing panics so a bad task
// cannot take a worker down.
func (p *Pool) runTask(ctx context.Context, r tracepool.Runnable) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("task panicked",
				slog.String("pool", p.name),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	r.Run(ctx)
}

// Configuration accessors and mutators.

func (p *Pool) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Pool) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *Pool) CoreSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.core
}

func (p *Pool) SetCoreSize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.core = n
}

func (p *Pool) MaxSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

func (p *Pool) SetMaxSize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.max = n
}

func (p *Pool) KeepAlive() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keepAlive
}

func (p *Pool) SetKeepAlive(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keepAlive = d
}

func (p *Pool) QueueCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

func (p *Pool) SetQueueCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacity = n
}

func (p *Pool) WorkerPrefix() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefix
}

func (p *Pool) SetWorkerPrefix(prefix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefix = prefix
}

func (p *Pool) RejectionPolicy() tracepool.RejectionPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy
}

func (p *Pool) SetRejectionPolicy(rp tracepool.RejectionPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = rp
}

func (p *Pool) TaskDecorator() tracepool.TaskDecorator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decorator
}

func (p *Pool) SetTaskDecorator(d tracepool.TaskDecorator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decorator = d
}

// Introspection.

func (p *Pool) WorkerCount() int { return int(p.workers.Load()) }

func (p *Pool) ActiveCount() int { return int(p.active.Load()) }

func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return 0
	}
	return len(p.queue)
}
