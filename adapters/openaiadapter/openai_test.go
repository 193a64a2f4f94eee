package openaiadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolpipe"
	"github.com/skosovsky/toolpipe/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func weatherRegistry(t *testing.T) *toolpipe.Registry {
	t.Helper()
	return testutil.NewTestRegistry(toolpipe.ToolDefinition{
		Name:        "get_weather",
		Description: "Current weather",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []any{"city"},
		},
	})
}

func TestTools(t *testing.T) {
	tools, err := New(WithStrictFunctions()).Tools(weatherRegistry(t))
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, tools[0].Type)
	assert.Equal(t, "get_weather", tools[0].Function.Name)
	assert.True(t, tools[0].Function.Strict)

	body, err := json.Marshal(tools[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), `"required":["city"]`)
}

func TestTools_FailFast(t *testing.T) {
	reg := weatherRegistry(t)
	_, err := reg.RegisterTool(toolpipe.ToolDefinition{Name: strings.Repeat("x", 80)})
	require.NoError(t, err)

	tools, err := New().Tools(reg)
	assert.Nil(t, tools)
	var pve *toolpipe.ProviderValidationError
	require.ErrorAs(t, err, &pve)
	assert.Equal(t, toolpipe.ProviderOpenAI, pve.Provider)

	// ollama has no name-length rule
	_, err = New(WithProviderID(toolpipe.ProviderOllama)).Tools(reg)
	require.NoError(t, err)
}

func TestNormalizeResponse(t *testing.T) {
	var resp openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "chatcmpl-1",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"id": "call_a", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}},
					{"id": "", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\": \"Rome\""}}
				]
			}
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`), &resp))

	out, err := New(WithArgumentRepair()).NormalizeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", out.FinishReason)
	assert.Equal(t, toolpipe.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, out.Usage)
	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, "call_a", out.ToolCalls[0].CallID)
	assert.True(t, strings.HasPrefix(out.ToolCalls[1].CallID, "call_"))
	assert.True(t, json.Valid([]byte(out.ToolCalls[1].Arguments)), out.ToolCalls[1].Arguments)

	_, err = New().NormalizeResponse(openai.ChatCompletionResponse{})
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestRoundTrip_ExecutorToToolMessages(t *testing.T) {
	reg := weatherRegistry(t)
	exec := toolpipe.NewExecutor(toolpipe.DefaultExecutorConfig(),
		toolpipe.WithRegistry(reg),
		toolpipe.WithImplementations(map[string]toolpipe.Implementation{
			"get_weather": toolpipe.ImplementationFunc(func(_ context.Context, args json.RawMessage) (any, error) {
				var in struct{ City string }
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, err
				}
				return map[string]any{"city": in.City, "temp": 21}, nil
			}),
		}))

	reqs := New().ToolCallRequests([]openai.ToolCall{
		{ID: "1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`}},
		{ID: "2", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "get_weather", Arguments: `{}`}},
	})
	msgs := ToolMessages(exec.ExecuteToolCalls(context.Background(), reqs))
	require.Len(t, msgs, 2)
	assert.Equal(t, openai.ChatMessageRoleTool, msgs[0].Role)
	assert.Equal(t, "1", msgs[0].ToolCallID)
	assert.JSONEq(t, `{"city":"Oslo","temp":21}`, msgs[0].Content)
	assert.Equal(t, "2", msgs[1].ToolCallID)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Error [invalid_arguments]"), msgs[1].Content)

	assistant := AssistantMessage("", reqs)
	require.Len(t, assistant.ToolCalls, 2)
	assert.Equal(t, "2", assistant.ToolCalls[1].ID)
}

func TestArgumentRepair_LogsAndExecutes(t *testing.T) {
	logger := &testutil.RecordingLogger{}
	mock := &testutil.MockImplementation{}
	exec := testutil.NewTestExecutor(map[string]toolpipe.Implementation{"get_weather": mock},
		toolpipe.WithRegistry(weatherRegistry(t)))

	reqs := New(WithArgumentRepair(), WithLogger(logger)).ToolCallRequests([]openai.ToolCall{
		{ID: "r1", Function: openai.FunctionCall{Name: "get_weather", Arguments: `{"city": "Lima"`}},
	})
	res := exec.ExecuteToolCall(context.Background(), reqs[0])
	require.True(t, res.Success, res.Content())
	assert.Equal(t, 1, mock.Calls())
	assert.JSONEq(t, `{"city":"Lima"}`, string(mock.LastArgs()))

	debug := logger.Level("debug")
	require.Len(t, debug, 1)
	assert.Equal(t, "tool arguments repaired", debug[0].Msg)
	id, ok := debug[0].Attr("call_id")
	require.True(t, ok)
	assert.Equal(t, "r1", id)
}

func TestTools_RejectionLogged(t *testing.T) {
	logger := &testutil.RecordingLogger{}
	reg := testutil.NewTestRegistry(toolpipe.ToolDefinition{Name: "bad name"})
	_, err := New(WithLogger(logger)).Tools(reg)
	require.Error(t, err)
	errs := logger.Level("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "tool definitions rejected", errs[0].Msg)
}
