// Package resolve obtains tracing collaborators from the hosting
// environment. A Resolver looks up the tracer and the span-naming
// strategy lazily, caches what it finds, and degrades gracefully when
// the environment cannot supply them yet.
package resolve

import (
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Capability identifies a collaborator obtainable from a Lookup.
type Capability string

const (
	// CapabilityTracer identifies the trace.Tracer used to start spans.
	CapabilityTracer Capability = "tracer"
	// CapabilitySpanNamer identifies the SpanNamer naming strategy.
	CapabilitySpanNamer Capability = "span-namer"
)

var (
	// ErrNotRegistered reports that no provider exists for the requested
	// capability. For the span namer this is expected and non-fatal.
	ErrNotRegistered = errors.New("resolve: capability not registered")

	// ErrNotReady reports that the hosting environment has not finished
	// initializing and cannot answer lookups yet.
	ErrNotReady = errors.New("resolve: environment not ready")
)

// Lookup supplies collaborators from the hosting environment (a DI
// container, a service registry, or a hand-wired map in tests).
// Implementations return ErrNotRegistered when no provider exists for
// the capability and ErrNotReady while still initializing.
type Lookup interface {
	Resolve(c Capability) (any, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(c Capability) (any, error)

// Resolve calls f(c).
func (f LookupFunc) Resolve(c Capability) (any, error) { return f(c) }

// Resolver lazily resolves and memoizes the tracing collaborators for
// one decorated pool.
//
// The tracer is cached on first successful lookup; until then every call
// retries, so a pool wrapped before the environment is ready picks up
// tracing once the environment comes up. The span namer is resolved
// once: a missing provider logs a single warning and permanently
// substitutes DefaultSpanNamer.
type Resolver struct {
	lookup Lookup
	logger *slog.Logger

	mu     sync.Mutex
	tracer trace.Tracer
	namer  SpanNamer
	warned bool
}

// New creates a Resolver backed by lookup. A nil logger falls back to
// slog.Default().
func New(lookup Lookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{lookup: lookup, logger: logger}
}

// Ready reports whether a tracer is currently available. When false,
// callers skip decoration and pass work through untouched.
func (r *Resolver) Ready() bool {
	_, ok := r.Tracer()
	return ok
}

// Tracer returns the tracer, resolving it through the Lookup on first
// use. ok is false while the environment cannot supply one; that state
// is not cached, so a later call may succeed.
func (r *Resolver) Tracer() (trace.Tracer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tracer != nil {
		return r.tracer, true
	}

	v, err := r.lookup.Resolve(CapabilityTracer)
	if err != nil {
		return nil, false
	}
	t, ok := v.(trace.Tracer)
	if !ok {
		r.logger.Warn("tracer lookup returned unexpected type, tracing disabled for this submission",
			slog.String("capability", string(CapabilityTracer)),
		)
		return nil, false
	}

	r.tracer = t
	return t, true
}

// SpanNamer returns the naming strategy, resolving it through the Lookup
// on first use. A missing provider logs one warning and caches
// DefaultSpanNamer; any other lookup failure falls back to the default
// for this call without caching.
func (r *Resolver) SpanNamer() SpanNamer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.namer != nil {
		return r.namer
	}

	v, err := r.lookup.Resolve(CapabilitySpanNamer)
	if err != nil {
		if errors.Is(err, ErrNotRegistered) {
			if !r.warned {
				r.logger.Warn("span namer not registered, falling back to default naming",
					slog.String("error", err.Error()),
				)
				r.warned = true
			}
			r.namer = DefaultSpanNamer{}
			return r.namer
		}
		return DefaultSpanNamer{}
	}

	n, ok := v.(SpanNamer)
	if !ok {
		if !r.warned {
			r.logger.Warn("span namer lookup returned unexpected type, falling back to default naming",
				slog.String("capability", string(CapabilitySpanNamer)),
			)
			r.warned = true
		}
		r.namer = DefaultSpanNamer{}
		return r.namer
	}

	r.namer = n
	return n
}
