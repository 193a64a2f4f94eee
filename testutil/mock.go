// Package testutil provides test helpers for toolpipe (e.g. MockImplementation, RecordingLogger).
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skosovsky/toolpipe"
)

// MockImplementation is a configurable Implementation for tests. It counts
// invocations and remembers the last arguments it received.
type MockImplementation struct {
	InvokeFn   func(ctx context.Context, args json.RawMessage) (any, error)
	TimeoutVal time.Duration

	calls atomic.Int64
	mu    sync.Mutex
	last  json.RawMessage
}

// Invoke runs InvokeFn if set, otherwise returns the arguments as text.
func (m *MockImplementation) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.last = append(json.RawMessage(nil), args...)
	m.mu.Unlock()
	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, args)
	}
	return string(args), nil
}

// Timeout returns TimeoutVal; zero keeps the executor default.
func (m *MockImplementation) Timeout() time.Duration {
	return m.TimeoutVal
}

// Calls returns how many times Invoke ran.
func (m *MockImplementation) Calls() int {
	return int(m.calls.Load())
}

// LastArgs returns the arguments of the most recent invocation.
func (m *MockImplementation) LastArgs() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Ensure MockImplementation implements Implementation.
var (
	_ toolpipe.Implementation   = (*MockImplementation)(nil)
	_ toolpipe.TimeoutOverrider = (*MockImplementation)(nil)
)
