package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes describing what the process is doing
// right now, such as the active capture session.
type ContextProvider func() []slog.Attr

// ContextHandler wraps another handler and adds the provider's attributes to
// every record. A provider attribute is skipped when the record, or a logger
// derived with With, already carries the same key: a log line about an
// earlier session keeps its own "session" value while a new one is active.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
	bound    map[string]struct{}
	grouped  bool
}

// NewContextHandler creates a handler that adds dynamic context to each record.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{
		inner:    inner,
		provider: provider,
	}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the provider's attributes not already present and delegates.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}
	attrs := h.provider()
	if len(attrs) == 0 {
		return h.inner.Handle(ctx, r)
	}

	present := make(map[string]struct{}, r.NumAttrs()+len(h.bound))
	for k := range h.bound {
		present[k] = struct{}{}
	}
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = struct{}{}
		return true
	})
	for _, a := range attrs {
		if _, ok := present[a.Key]; !ok {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new ContextHandler that also treats attrs' keys as
// present, unless a group is open and they no longer share a namespace.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.grouped {
		return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider, bound: h.bound, grouped: true}
	}
	bound := make(map[string]struct{}, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = struct{}{}
	}
	for _, a := range attrs {
		bound[a.Key] = struct{}{}
	}
	return &ContextHandler{
		inner:    h.inner.WithAttrs(attrs),
		provider: h.provider,
		bound:    bound,
	}
}

// WithGroup returns a new ContextHandler with the given group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{
		inner:    h.inner.WithGroup(name),
		provider: h.provider,
		bound:    h.bound,
		grouped:  true,
	}
}
