package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolpipe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMockImplementation(t *testing.T) {
	m := &MockImplementation{
		TimeoutVal: time.Second,
		InvokeFn: func(_ context.Context, _ json.RawMessage) (any, error) {
			return map[string]bool{"done": true}, nil
		},
	}
	out, err := m.Invoke(context.Background(), json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"done": true}, out)
	assert.Equal(t, 1, m.Calls())
	assert.JSONEq(t, `{"a":1}`, string(m.LastArgs()))
	assert.Equal(t, time.Second, m.Timeout())
}

func TestMockImplementation_DefaultEchoesArgs(t *testing.T) {
	m := &MockImplementation{}
	out, err := m.Invoke(context.Background(), json.RawMessage(`{"x":"y"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"x":"y"}`, out)
}

func TestNewTestExecutor(t *testing.T) {
	m := &MockImplementation{}
	exec := NewTestExecutor(map[string]toolpipe.Implementation{"m": m})
	res := exec.ExecuteToolCall(context.Background(), toolpipe.ToolCallRequest{CallID: "1", Name: "m", Arguments: `{}`})
	require.True(t, res.Success, res.Content())
	assert.Equal(t, "{}", res.Output)
	assert.Equal(t, 1, m.Calls())
}

func TestNewTestRegistry(t *testing.T) {
	reg := NewTestRegistry(toolpipe.ToolDefinition{Name: "m", Description: "mock"})
	all := reg.GetAllTools()
	require.Len(t, all, 1)
	assert.Equal(t, "m", all[0].Name)
}

func TestRecordingLogger(t *testing.T) {
	var l RecordingLogger
	l.Warn("careful", "tool", "echo")
	l.Error("boom")
	require.Len(t, l.Entries(), 2)
	warn := l.Level("warn")
	require.Len(t, warn, 1)
	v, ok := warn[0].Attr("tool")
	require.True(t, ok)
	assert.Equal(t, "echo", v)
}
