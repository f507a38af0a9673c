package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// MultiHandler sends each record to every member enabled for its level.
type MultiHandler []slog.Handler

// NewMultiHandler drops nil members.
func NewMultiHandler(handlers ...slog.Handler) MultiHandler {
	return slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
}

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(m, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

// Handle keeps going past a failing member and joins the failures.
func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			err = errors.Join(err, h.Handle(ctx, r.Clone()))
		}
	}
	return err
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(MultiHandler, 0, len(m))
	for _, h := range m {
		out = append(out, h.WithAttrs(attrs))
	}
	return out
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	out := make(MultiHandler, 0, len(m))
	for _, h := range m {
		out = append(out, h.WithGroup(name))
	}
	return out
}

// ContextProvider returns attributes computed at log time, such as whether
// the routes of the running session are loaded yet.
type ContextProvider func() []slog.Attr

type attrsKey struct{}

// WithAttrs returns a context whose attributes are added to every record
// logged with it, on top of any already attached.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return context.WithValue(ctx, attrsKey{}, slices.Concat(prev, attrs))
}

// ContextHandler decorates records with the provider's attributes and those
// carried by the context.
type ContextHandler struct {
	slog.Handler
	provider ContextProvider
}

// NewContextHandler wraps inner. provider may be nil.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{Handler: inner, provider: provider}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	if attrs, ok := ctx.Value(attrsKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.wrap(h.Handler.WithAttrs(attrs))
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.wrap(h.Handler.WithGroup(name))
}

func (h *ContextHandler) wrap(inner slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: inner, provider: h.provider}
}
