package resolve

import "fmt"

// SpanNamer produces a display name for the span wrapping a unit of
// work. fallback is used when nothing better can be derived from the
// work itself.
type SpanNamer interface {
	Name(work any, fallback string) string
}

// Named lets a unit of work choose its own span name. DefaultSpanNamer
// checks for it before deriving a name from the work's type.
type Named interface {
	SpanName() string
}

// DefaultSpanNamer is the built-in naming strategy: the work's own
// SpanName when it implements Named, otherwise the work's Go type.
type DefaultSpanNamer struct{}

// Name implements SpanNamer.
func (DefaultSpanNamer) Name(work any, fallback string) string {
	if n, ok := work.(Named); ok {
		if name := n.SpanName(); name != "" {
			return name
		}
	}
	if work == nil {
		return fallback
	}
	return fmt.Sprintf("%T", work)
}
