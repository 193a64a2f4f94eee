package testutil

import (
	"time"

	"github.com/skosovsky/toolpipe"
)

// NewTestExecutor returns an Executor with a long timeout, no retries and panic
// recovery enabled, with impls bound by name. Suitable for tests.
func NewTestExecutor(impls map[string]toolpipe.Implementation, opts ...toolpipe.ExecutorOption) *toolpipe.Executor {
	cfg := toolpipe.ExecutorConfig{
		ToolTimeout:       30 * time.Second,
		ParallelExecution: true,
	}
	opts = append([]toolpipe.ExecutorOption{
		toolpipe.WithRecoverPanics(true),
		toolpipe.WithImplementations(impls),
	}, opts...)
	return toolpipe.NewExecutor(cfg, opts...)
}

// NewTestRegistry returns a Registry holding defs. It panics on an invalid definition.
func NewTestRegistry(defs ...toolpipe.ToolDefinition) *toolpipe.Registry {
	reg := toolpipe.NewRegistry()
	if _, err := reg.RegisterTools(defs...); err != nil {
		panic(err)
	}
	return reg
}
