package tracepool

import "errors"

var (
	// Submission errors.
	ErrNilWork       = errors.New("tracepool: nil unit of work")
	ErrPoolSaturated = errors.New("tracepool: queue is full")
	ErrPoolStopped   = errors.New("tracepool: pool is not running")

	// Future errors.
	ErrFutureResolved = errors.New("tracepool: future already resolved")
)
