package toolpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Executor runs tool calls against bound implementations with a timeout per
// attempt, bounded retries, and optional parallel fan-out. Every request
// yields exactly one ToolCallResult. Safe for concurrent use.
type Executor struct {
	cfg           ExecutorConfig
	logger        Logger
	registry      *Registry
	recoverPanics bool
	onBefore      func(context.Context, ToolCallRequest)
	onAfter       func(context.Context, ToolCallRequest, ToolCallResult, time.Duration)

	mu          sync.RWMutex
	bindings    map[string]binding // wrapped with middlewares, used for execution
	middlewares []Middleware
	done        chan struct{}
	running     sync.WaitGroup
}

// binding keeps the raw implementation next to its middleware-wrapped form so
// Use can rewrap from scratch.
type binding struct {
	raw     Implementation
	wrapped Implementation
}

// NewExecutor creates an Executor with cfg as its execution policy.
func NewExecutor(cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	o := executorOptions{
		logger:        discardLogger(),
		recoverPanics: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	e := &Executor{
		cfg:           cfg.normalized(),
		logger:        o.logger,
		registry:      o.registry,
		recoverPanics: o.recoverPanics,
		onBefore:      o.onBefore,
		onAfter:       o.onAfter,
		bindings:      make(map[string]binding, len(o.impls)),
		done:          make(chan struct{}),
	}
	for name, impl := range o.impls {
		if strings.TrimSpace(name) == "" || impl == nil {
			continue
		}
		e.bindings[name] = binding{raw: impl, wrapped: impl}
	}
	return e
}

// Config returns the normalized execution policy.
func (e *Executor) Config() ExecutorConfig {
	return e.cfg
}

// RegisterToolImplementation binds impl to name. An existing binding is left
// untouched: the call returns false and logs a warning. An empty name or a nil
// impl panics.
func (e *Executor) RegisterToolImplementation(name string, impl Implementation) bool {
	if strings.TrimSpace(name) == "" {
		panic("toolpipe: RegisterToolImplementation name must not be empty")
	}
	if impl == nil {
		panic("toolpipe: RegisterToolImplementation impl must not be nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.bindings[name]; exists {
		e.logger.Warn("tool implementation already registered", "tool", name, "code", CodeRegistrationConflict)
		return false
	}
	e.bindings[name] = binding{raw: impl, wrapped: e.wrap(name, impl)}
	e.logger.Debug("tool implementation registered", "tool", name)
	return true
}

// GetToolImplementations returns a copy of the bindings without middlewares.
func (e *Executor) GetToolImplementations() map[string]Implementation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Implementation, len(e.bindings))
	for name, b := range e.bindings {
		out[name] = b.raw
	}
	return out
}

// wrap applies stored middlewares; caller holds e.mu.
func (e *Executor) wrap(name string, impl Implementation) Implementation {
	for i := len(e.middlewares) - 1; i >= 0; i-- {
		impl = e.middlewares[i](name, impl)
	}
	return impl
}

func (e *Executor) lookup(name string) (binding, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.bindings[name]
	return b, ok
}

// enter registers an in-flight call unless the executor is shutting down.
func (e *Executor) enter() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	select {
	case <-e.done:
		return false
	default:
	}
	e.running.Add(1)
	return true
}

// ExecuteToolCall runs one request to completion, retries included, and
// returns its result. It never returns an error: every failure is a
// ToolCallResult with Success == false.
func (e *Executor) ExecuteToolCall(ctx context.Context, req ToolCallRequest) ToolCallResult {
	if !e.enter() {
		return failed(req, CodeExecutionError, ErrShutdown.Error(), 0)
	}
	defer e.running.Done()

	start := time.Now()
	res := e.executeToolCall(ctx, req)
	if e.onAfter != nil {
		e.onAfter(ctx, req, res, time.Since(start))
	}
	return res
}

func (e *Executor) executeToolCall(ctx context.Context, req ToolCallRequest) ToolCallResult {
	b, ok := e.lookup(req.Name)
	if !ok {
		e.logger.Error("tool not found", "tool", req.Name, "call_id", req.CallID)
		return failed(req, CodeToolNotFound, fmt.Sprintf("%s: %s", ErrToolNotFound, req.Name), 0)
	}

	args, parsed, err := parseArguments(req.Arguments)
	if err == nil && e.registry != nil {
		err = e.registry.ValidateArguments(req.Name, parsed)
	}
	if err != nil {
		e.logger.Error("invalid tool arguments", "tool", req.Name, "call_id", req.CallID, "error", err)
		return failed(req, CodeInvalidArguments, err.Error(), 0)
	}

	if e.onBefore != nil {
		e.onBefore(ctx, req)
	}
	value, attempts, err := e.invokeWithRetry(ctx, req.Name, b, args)
	if err != nil {
		code := Classify(err)
		logArgs := []any{"tool", req.Name, "call_id", req.CallID, "code", code, "attempts", attempts, "error", err}
		var sysErr *SystemError
		if errors.As(err, &sysErr) && sysErr.Err != nil {
			logArgs = append(logArgs, "cause", sysErr.Err.Error())
		}
		e.logger.Error("tool execution failed", logArgs...)
		return failed(req, code, err.Error(), attempts)
	}

	output, err := canonicalOutput(value)
	if err != nil {
		e.logger.Error("tool output not serializable", "tool", req.Name, "call_id", req.CallID, "error", err)
		return failed(req, CodeExecutionError, err.Error(), attempts)
	}
	e.logger.Debug("tool executed", "tool", req.Name, "call_id", req.CallID, "attempts", attempts)
	return succeeded(req, output, attempts)
}

// ExecuteToolCalls runs reqs and returns their results in request order,
// one per request. In parallel mode calls share nothing: a failing sibling
// never cancels the others.
func (e *Executor) ExecuteToolCalls(ctx context.Context, reqs []ToolCallRequest) []ToolCallResult {
	results := make([]ToolCallResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	if !e.cfg.ParallelExecution || len(reqs) == 1 {
		for i, req := range reqs {
			results[i] = e.ExecuteToolCall(ctx, req)
		}
		return results
	}

	var g errgroup.Group
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = e.ExecuteToolCall(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ExecuteTool invokes the named implementation once, bypassing the result
// envelope, schema checks, and retries. args may be a Go value, which is
// marshalled, or already-encoded json.RawMessage. Errors propagate as
// ErrToolNotFound, ErrTimeout, or the implementation's own error.
func (e *Executor) ExecuteTool(ctx context.Context, name string, args any) (any, error) {
	if !e.enter() {
		return nil, ErrShutdown
	}
	defer e.running.Done()

	b, ok := e.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	raw, err := encodeArguments(args)
	if err != nil {
		return nil, err
	}
	return e.invokeOnce(ctx, b, raw)
}

// Shutdown refuses new calls and waits for in-flight ones or ctx to end.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	select {
	case <-e.done:
		e.mu.Unlock()
		return nil
	default:
		close(e.done)
	}
	e.mu.Unlock()
	done := make(chan struct{})
	go func() {
		e.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errArgumentsNotObject = errors.New("arguments must be a JSON object")

// parseArguments decodes raw model output. Blank or null arguments mean {}.
// It returns the canonical bytes handed to the implementation and the decoded
// value used for schema validation.
func parseArguments(raw string) (json.RawMessage, map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), map[string]any{}, nil
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	if err := dec.Decode(&v); err != nil {
		return nil, nil, wrapJSONParseError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, nil, wrapJSONParseError(errors.New("unexpected data after top-level value"))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil, &ClientError{Reason: errArgumentsNotObject.Error(), Err: ErrValidation}
	}
	return json.RawMessage(trimmed), obj, nil
}

// encodeArguments marshals ExecuteTool input. nil means {}.
func encodeArguments(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(bytes.TrimSpace(v)) == 0 {
			return json.RawMessage("{}"), nil
		}
		return v, nil
	case []byte:
		if len(bytes.TrimSpace(v)) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(v), nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, &ClientError{Reason: "encode arguments: " + err.Error(), Err: ErrValidation}
	}
	return data, nil
}

// canonicalOutput turns an implementation's return value into result text:
// strings pass through, everything else is JSON-encoded.
func canonicalOutput(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool output: %w", err)
	}
	return string(data), nil
}
