package traced

import (
	"sync"

	"github.com/xraph/tracepool"
	"github.com/xraph/tracepool/resolve"
)

// Process-wide pool→facade cache. A plain mutex rather than sync.Map so
// the facade constructor runs at most once per pool, even when two
// goroutines race to wrap the same pool on first use.
var (
	registryMu sync.Mutex
	registry   = make(map[tracepool.Pool]*Pool)
)

// Wrap returns the single decorating facade for pool, creating it on
// first use. Identity-keyed: the same pool instance always yields the
// same facade, no matter how often or from how many goroutines Wrap is
// called.
func Wrap(lookup resolve.Lookup, pool tracepool.Pool, opts ...Option) *Pool {
	return WrapNamed(lookup, pool, "", opts...)
}

// WrapNamed is Wrap with a span-name hint. The hint (and opts) apply
// only when the facade is first created; a later call with a different
// name returns the cached facade with its original name unchanged.
func WrapNamed(lookup resolve.Lookup, pool tracepool.Pool, name string, opts ...Option) *Pool {
	registryMu.Lock()
	defer registryMu.Unlock()

	if f, ok := registry[pool]; ok {
		return f
	}

	f := NewPool(lookup, pool, append([]Option{WithName(name)}, opts...)...)
	registry[pool] = f
	return f
}
