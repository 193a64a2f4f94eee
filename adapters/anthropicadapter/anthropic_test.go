package anthropicadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolpipe"
	"github.com/skosovsky/toolpipe/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func registry(t *testing.T, defs ...toolpipe.ToolDefinition) *toolpipe.Registry {
	t.Helper()
	return testutil.NewTestRegistry(defs...)
}

func TestTools(t *testing.T) {
	reg := registry(t, toolpipe.ToolDefinition{
		Name:        "get_weather",
		Description: "Current weather",
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"city": map[string]any{"type": "string"}},
			"required":             []any{"city"},
			"additionalProperties": false,
		},
	})
	tools, err := New().Tools(reg)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	tool := tools[0].OfTool
	assert.Equal(t, "get_weather", tool.Name)
	assert.Equal(t, []string{"city"}, tool.InputSchema.Required)
	assert.Equal(t, false, tool.InputSchema.ExtraFields["additionalProperties"])

	body, err := json.Marshal(tool)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"object"`)
	assert.Contains(t, string(body), `"description":"Current weather"`)
}

func TestTools_FailFast(t *testing.T) {
	reg := registry(t, toolpipe.ToolDefinition{Name: "has space"})
	_, err := New().Tools(reg)
	var pve *toolpipe.ProviderValidationError
	require.ErrorAs(t, err, &pve)
	assert.Equal(t, toolpipe.ProviderAnthropic, pve.Provider)
}

func TestStringList(t *testing.T) {
	got, err := stringList([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	_, err = stringList([]any{"a", 1})
	require.Error(t, err)
	_, err = stringList("a")
	require.Error(t, err)
}

const toolUseMessage = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude",
	"stop_reason": "tool_use",
	"content": [
		{"type": "text", "text": "Checking both cities."},
		{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Oslo"}},
		{"type": "tool_use", "id": "", "name": "get_weather", "input": {}}
	],
	"usage": {"input_tokens": 12, "output_tokens": 8}
}`

func TestNormalizeResponse(t *testing.T) {
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(toolUseMessage), &msg))

	out := New().NormalizeResponse(msg)
	assert.Equal(t, "Checking both cities.", out.Content)
	assert.Equal(t, "tool_use", out.FinishReason)
	assert.Equal(t, toolpipe.Usage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20}, out.Usage)
	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, "toolu_1", out.ToolCalls[0].CallID)
	assert.JSONEq(t, `{"city":"Oslo"}`, out.ToolCalls[0].Arguments)
	assert.True(t, strings.HasPrefix(out.ToolCalls[1].CallID, "call_"))
}

func TestToolResultMessage(t *testing.T) {
	reg := registry(t, toolpipe.ToolDefinition{Name: "get_weather", Description: "d"})
	exec := testutil.NewTestExecutor(map[string]toolpipe.Implementation{
		"get_weather": &testutil.MockImplementation{
			InvokeFn: func(context.Context, json.RawMessage) (any, error) { return "sunny", nil },
		},
	}, toolpipe.WithRegistry(reg))
	results := exec.ExecuteToolCalls(context.Background(), []toolpipe.ToolCallRequest{
		{CallID: "toolu_1", Name: "get_weather", Arguments: `{"city":"Oslo"}`},
		{CallID: "toolu_2", Name: "get_tides"},
	})

	blocks := ToolResultBlocks(results)
	require.Len(t, blocks, 2)
	require.NotNil(t, blocks[0].OfToolResult)
	assert.Equal(t, "toolu_1", blocks[0].OfToolResult.ToolUseID)

	body, err := json.Marshal(ToolResultMessage(results))
	require.NoError(t, err)
	s := string(body)
	assert.Contains(t, s, `"role":"user"`)
	assert.Contains(t, s, `"tool_use_id":"toolu_2"`)
	assert.Contains(t, s, `"is_error":true`)
	assert.Contains(t, s, "tool_not_found")
}
