package toolpipe

import (
	"context"
	"encoding/json"
	"time"
)

// Middleware wraps an Implementation with cross-cutting behavior (logging, recovery, timeout).
// name is the binding the implementation is registered under.
type Middleware func(name string, next Implementation) Implementation

// WithLogging returns a middleware that logs start, end, duration, and errors of every attempt.
func WithLogging(logger Logger) Middleware {
	if logger == nil {
		logger = discardLogger()
	}
	return func(name string, next Implementation) Implementation {
		return &loggingImpl{implBase: implBase{name: name, next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that recovers panics and returns SystemError.
// Useful when the executor runs with WithRecoverPanics(false) but selected tools must not crash it.
func WithRecovery() Middleware {
	return func(name string, next Implementation) Implementation {
		return &recoveryImpl{implBase{name: name, next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that enforces a per-tool timeout (overrides the executor default for this tool).
// Named with "Middleware" suffix to avoid collision with ToolOption WithTimeout. The executor picks the
// override up as the attempt budget; the inner context also carries it.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(name string, next Implementation) Implementation {
		return &timeoutImpl{implBase: implBase{name: name, next: next}, timeout: d}
	}
}

// Use stores the given middlewares and reapplies them from scratch to all bound implementations (onion order:
// first middleware is outermost). Implementations registered after Use also get these middlewares applied.
// Calling Use multiple times replaces the middleware chain and rewraps from raw implementations, avoiding double-wrapping.
func (e *Executor) Use(middlewares ...Middleware) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middlewares = middlewares
	for name, b := range e.bindings {
		e.bindings[name] = binding{raw: b.raw, wrapped: e.wrap(name, b.raw)}
	}
}

// implBase delegates TimeoutOverrider to the wrapped implementation; used by middleware wrappers.
type implBase struct {
	name string
	next Implementation
}

func (b *implBase) Timeout() time.Duration {
	if to, ok := b.next.(TimeoutOverrider); ok {
		return to.Timeout()
	}
	return 0
}

type loggingImpl struct {
	implBase
	logger Logger
}

func (m *loggingImpl) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	m.logger.Info("tool start", "tool", m.name)
	start := time.Now()
	res, err := m.next.Invoke(ctx, args)
	dur := time.Since(start)
	if err != nil {
		m.logger.Error("tool error", "tool", m.name, "duration", dur, "error", err)
		return nil, err
	}
	m.logger.Info("tool end", "tool", m.name, "duration", dur)
	return res, nil
}

type recoveryImpl struct{ implBase }

func (r *recoveryImpl) Invoke(ctx context.Context, args json.RawMessage) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = &SystemError{Err: &panicError{p: p}}
		}
	}()
	return r.next.Invoke(ctx, args)
}

type timeoutImpl struct {
	implBase
	timeout time.Duration
}

func (t *timeoutImpl) Timeout() time.Duration {
	if t.timeout > 0 {
		return t.timeout
	}
	return t.implBase.Timeout()
}

func (t *timeoutImpl) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	if t.timeout <= 0 {
		return t.next.Invoke(ctx, args)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Invoke(ctx, args)
}

var (
	_ TimeoutOverrider = (*loggingImpl)(nil)
	_ TimeoutOverrider = (*recoveryImpl)(nil)
	_ TimeoutOverrider = (*timeoutImpl)(nil)
)
