// Package tracing times the stages of a request. Spans travel in the context
// and form a tree; the searcher reports the tree as debug timing and logs it
// at debug level.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is one timed stage.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// StartSpan starts a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan starts a span under the one in ctx. Without a parent the
// span is still returned but belongs to no tree.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := &Span{
		Name:      name,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

// Stage starts a child span of ctx and returns the function that ends it:
//
//	defer tracing.Stage(ctx, "parse")()
func Stage(ctx context.Context, name string) func() {
	_, span := StartChildSpan(ctx, name)
	return span.End
}

// End records the span duration. Calling it again updates the duration.
func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

// SetAttr attaches an attribute.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext returns the current span of ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Timings flattens the tree into path -> milliseconds, with child paths
// joined by '.', e.g. "search.parse". Repeated sibling names accumulate.
func (s *Span) Timings() map[string]float64 {
	out := make(map[string]float64)
	s.collect("", out)
	return out
}

func (s *Span) collect(prefix string, out map[string]float64) {
	s.mu.Lock()
	name := s.Name
	d := s.Duration
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	path := name
	if prefix != "" {
		path = prefix + "." + name
	}
	out[path] += float64(d.Microseconds()) / 1000
	for _, c := range children {
		c.collect(path, out)
	}
}

// Log writes the span tree to logger at debug level.
func (s *Span) Log(logger *slog.Logger) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	s.logRecursive(logger, 0)
}

func (s *Span) logRecursive(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	logger.Debug("span", attrs...)
	for _, child := range children {
		child.logRecursive(logger, depth+1)
	}
}
