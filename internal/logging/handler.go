package logging

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
)

type handlerRef struct {
	h slog.Handler
}

type resolvedHandler struct {
	root *handlerRef
	h    slog.Handler
}

// swapHandler forwards records to the currently configured root handler, so
// component loggers created before a reconfiguration follow it. Attributes
// and groups added with With are replayed on the new root.
type swapHandler struct {
	root  *atomic.Pointer[handlerRef]
	ops   []func(slog.Handler) slog.Handler
	cache atomic.Pointer[resolvedHandler]
}

func newSwapHandler(root *atomic.Pointer[handlerRef]) *swapHandler {
	return &swapHandler{root: root}
}

func (s *swapHandler) resolve() slog.Handler {
	root := s.root.Load()
	if cached := s.cache.Load(); cached != nil && cached.root == root {
		return cached.h
	}
	h := root.h
	for _, op := range s.ops {
		h = op(h)
	}
	s.cache.Store(&resolvedHandler{root: root, h: h})

	return h
}

func (s *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.root.Load().h.Enabled(ctx, level)
}

func (s *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.resolve().Handle(ctx, r)
}

func (s *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return s
	}

	return s.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (s *swapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}

	return s.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s *swapHandler) with(op func(slog.Handler) slog.Handler) *swapHandler {
	return &swapHandler{
		root: s.root,
		ops:  append(slices.Clip(s.ops), op),
	}
}
