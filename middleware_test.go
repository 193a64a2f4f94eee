package toolpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	inner := ImplementationFunc(func(context.Context, json.RawMessage) (any, error) {
		return map[string]bool{"ok": true}, nil
	})
	wrapped := WithLogging(logger)("log_me", inner)
	out, err := wrapped.Invoke(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ok": true}, out)
	logStr := buf.String()
	assert.Contains(t, logStr, "tool start")
	assert.Contains(t, logStr, "tool end")
	assert.Contains(t, logStr, "log_me")

	buf.Reset()
	failing := WithLogging(logger)("fail_me", ImplementationFunc(func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("nope")
	}))
	_, err = failing.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "tool error")
}

func TestWithRecovery(t *testing.T) {
	inner := ImplementationFunc(func(context.Context, json.RawMessage) (any, error) {
		panic("test panic")
	})
	wrapped := WithRecovery()("panic_me", inner)
	res, err := wrapped.Invoke(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Nil(t, res)
	var sysErr *SystemError
	require.ErrorAs(t, err, &sysErr)
	assert.Contains(t, sysErr.Err.Error(), "panic")
}

func TestWithTimeoutMiddleware(t *testing.T) {
	inner := ImplementationFunc(func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	wrapped := WithTimeoutMiddleware(5*time.Millisecond)("slow", inner)
	res, err := wrapped.Invoke(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	to, ok := wrapped.(TimeoutOverrider)
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, to.Timeout())
}

func TestMiddleware_DelegatesTimeout(t *testing.T) {
	tool, err := NewDynamicTool("t", "d", map[string]any{"type": "object"},
		func(context.Context, json.RawMessage) (any, error) { return nil, nil },
		WithTimeout(time.Second))
	require.NoError(t, err)
	wrapped := WithLogging(nil)("t", WithRecovery()("t", tool.Implementation))
	to, ok := wrapped.(TimeoutOverrider)
	require.True(t, ok)
	assert.Equal(t, time.Second, to.Timeout())
}

func TestExecutor_Use(t *testing.T) {
	type A struct {
		X int `json:"x"`
	}
	type R struct {
		Y int `json:"y"`
	}
	tool, err := NewTool("wrap_me", "desc", func(_ context.Context, a A) (R, error) {
		return R{Y: a.X + 1}, nil
	})
	require.NoError(t, err)
	exec := NewExecutor(DefaultExecutorConfig())
	require.NoError(t, Install(nil, exec, tool))
	exec.Use(WithRecovery(), WithLogging(slog.New(slog.DiscardHandler)))
	res := exec.ExecuteToolCall(context.Background(), ToolCallRequest{CallID: "1", Name: "wrap_me", Arguments: `{"x": 2}`})
	require.True(t, res.Success, res.Content())
	assert.JSONEq(t, `{"y":3}`, res.Output)
	assert.Same(t, tool.Implementation, exec.GetToolImplementations()["wrap_me"])
}

// TestExecutor_Use_NoDoubleWrap verifies that calling Use() twice rewraps from raw implementations,
// so middlewares are not applied twice.
func TestExecutor_Use_NoDoubleWrap(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	exec := newEchoExecutor(t, DefaultExecutorConfig())
	exec.Use(WithLogging(logger))
	exec.Use(WithLogging(logger))
	res := exec.ExecuteToolCall(context.Background(), ToolCallRequest{CallID: "1", Name: "echo", Arguments: `{"text":"x"}`})
	require.True(t, res.Success)
	require.Equal(t, 1, strings.Count(buf.String(), "tool start"))
}

func TestExecutor_Use_AppliesToLaterRegistrations(t *testing.T) {
	var order []string
	mark := func(label string) Middleware {
		return func(_ string, next Implementation) Implementation {
			return ImplementationFunc(func(ctx context.Context, args json.RawMessage) (any, error) {
				order = append(order, label)
				return next.Invoke(ctx, args)
			})
		}
	}
	exec := NewExecutor(ExecutorConfig{})
	exec.Use(mark("outer"), mark("inner"))
	require.True(t, exec.RegisterToolImplementation("echo", echoImpl()))
	res := exec.ExecuteToolCall(context.Background(), ToolCallRequest{CallID: "1", Name: "echo", Arguments: `{"text":"x"}`})
	require.True(t, res.Success)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestExecutor_TimeoutMiddlewareSetsBudget(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{ToolTimeout: time.Hour}, WithImplementations(map[string]Implementation{
		"slow": ImplementationFunc(func(ctx context.Context, _ json.RawMessage) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}))
	exec.Use(WithTimeoutMiddleware(10 * time.Millisecond))
	res := exec.ExecuteToolCall(context.Background(), ToolCallRequest{CallID: "1", Name: "slow"})
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeExecutionTimeout, res.Error.Code)
	assert.Contains(t, res.Error.Message, "10ms")
}
