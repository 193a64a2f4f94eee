package toolpipe

import (
	"context"
	"time"
)

// ExecutorConfig is the execution policy of an Executor. It is copied at
// construction and never changes afterwards.
type ExecutorConfig struct {
	// ToolTimeout is the wall-clock budget of a single attempt. Zero means
	// DefaultToolTimeout; NoToolTimeout (any negative value) disables the timer.
	ToolTimeout time.Duration
	// MaxRetries is the number of attempts beyond the first for transient failures.
	MaxRetries int
	// ParallelExecution runs a batch concurrently; otherwise strictly in request order.
	ParallelExecution bool
	// MaxConcurrency caps parallel fan-out. Zero or negative means unbounded.
	MaxConcurrency int
	// RetryBackoff is the initial delay between attempts. Zero retries immediately.
	RetryBackoff time.Duration
	// MaxRetryBackoff caps the exponential delay. Defaults to 8x RetryBackoff.
	MaxRetryBackoff time.Duration
}

const (
	// DefaultToolTimeout is the attempt budget used when ExecutorConfig.ToolTimeout is zero.
	DefaultToolTimeout = 30 * time.Second
	// NoToolTimeout lets attempts run until the caller's context ends.
	NoToolTimeout time.Duration = -1
)

// DefaultExecutorConfig returns the policy used when nothing is configured.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		ToolTimeout:       DefaultToolTimeout,
		MaxRetries:        2,
		ParallelExecution: true,
	}
}

func (c ExecutorConfig) normalized() ExecutorConfig {
	switch {
	case c.ToolTimeout == 0:
		c.ToolTimeout = DefaultToolTimeout
	case c.ToolTimeout < 0:
		c.ToolTimeout = NoToolTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxConcurrency < 0 {
		c.MaxConcurrency = 0
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.RetryBackoff > 0 && c.MaxRetryBackoff < c.RetryBackoff {
		c.MaxRetryBackoff = 8 * c.RetryBackoff
	}
	return c
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	logger        Logger
	registry      *Registry
	impls         map[string]Implementation
	recoverPanics bool
	onBefore      func(context.Context, ToolCallRequest)
	onAfter       func(context.Context, ToolCallRequest, ToolCallResult, time.Duration)
}

// WithLogger sets the executor logger. A nil logger keeps the discarding default.
func WithLogger(l Logger) ExecutorOption {
	return func(o *executorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry makes the executor validate call arguments against the
// registered definition's schema before invoking the implementation.
func WithRegistry(r *Registry) ExecutorOption {
	return func(o *executorOptions) {
		o.registry = r
	}
}

// WithImplementations seeds the binding map at construction. The map is copied.
func WithImplementations(impls map[string]Implementation) ExecutorOption {
	return func(o *executorOptions) {
		o.impls = impls
	}
}

// WithRecoverPanics controls whether a panicking implementation is turned into
// an execution_error (default) or crashes the process.
func WithRecoverPanics(enable bool) ExecutorOption {
	return func(o *executorOptions) {
		o.recoverPanics = enable
	}
}

// WithOnBeforeExecute sets a hook called before an implementation is first invoked.
func WithOnBeforeExecute(fn func(context.Context, ToolCallRequest)) ExecutorOption {
	return func(o *executorOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterExecute sets a hook called once per request with its final result.
func WithOnAfterExecute(fn func(context.Context, ToolCallRequest, ToolCallResult, time.Duration)) ExecutorOption {
	return func(o *executorOptions) {
		o.onAfter = fn
	}
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	logger Logger
	rules  map[string]ProviderRules
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l Logger) RegistryOption {
	return func(o *registryOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProviderRules adds or replaces the rule set used for providerID.
func WithProviderRules(providerID string, rules ProviderRules) RegistryOption {
	return func(o *registryOptions) {
		o.rules[normalizeProviderID(providerID)] = rules
	}
}

// toolOptions hold optional tool settings (timeout, strict, tags).
type toolOptions struct {
	strict  bool
	timeout time.Duration
	tags    []string
}

// ToolOption configures a tool built with NewTool or NewDynamicTool.
type ToolOption func(*toolOptions)

// WithStrict sets strict mode for schema: additionalProperties: false for all objects,
// and all properties become required. Use for OpenAI Structured Outputs compatibility.
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithTimeout sets a per-tool attempt budget that overrides ExecutorConfig.ToolTimeout.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// WithTags sets the definition's tags.
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) {
		o.tags = tags
	}
}
