package toolpipe

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nestedSchema(depth int) map[string]any {
	leaf := map[string]any{"type": "string"}
	for range depth - 1 {
		leaf = map[string]any{
			"type":       "object",
			"properties": map[string]any{"child": leaf},
		}
	}
	return leaf
}

func TestValidateToolsForProvider_ValidSet(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.RegisterTools(weatherDef(), ToolDefinition{Name: "ping", Description: "Liveness"})
	require.NoError(t, err)
	for _, provider := range []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama, "azure", " OpenAI "} {
		t.Run(provider, func(t *testing.T) {
			report := reg.ValidateToolsForProvider(provider)
			assert.True(t, report.Valid, report.Messages)
			assert.Empty(t, report.InvalidTools)
			assert.NoError(t, report.Err())
		})
	}
}

func TestValidateToolsForProvider_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	report := reg.ValidateToolsForProvider("carrier-pigeon")
	assert.False(t, report.Valid)
	assert.Equal(t, []string{`unknown provider "carrier-pigeon"`}, report.Messages)
	var pve *ProviderValidationError
	require.ErrorAs(t, report.Err(), &pve)
	assert.Equal(t, "carrier-pigeon", pve.Provider)
}

func TestValidateToolsForProvider_Violations(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		def      ToolDefinition
		message  string
	}{
		{
			name:     "name too long",
			provider: ProviderOpenAI,
			def:      ToolDefinition{Name: strings.Repeat("a", 65)},
			message:  "name is 65 characters, limit is 64",
		},
		{
			name:     "name with spaces",
			provider: ProviderAnthropic,
			def:      ToolDefinition{Name: "get weather"},
			message:  "name does not match",
		},
		{
			name:     "description too long",
			provider: ProviderOpenAI,
			def:      ToolDefinition{Name: "d", Description: strings.Repeat("x", 1025)},
			message:  "description is 1025 characters, limit is 1024",
		},
		{
			name:     "missing description",
			provider: ProviderGemini,
			def:      ToolDefinition{Name: "quiet"},
			message:  "description is required",
		},
		{
			name:     "non-object root",
			provider: ProviderOpenAI,
			def:      ToolDefinition{Name: "arr", Parameters: map[string]any{"type": "array", "items": map[string]any{"type": "string"}}},
			message:  `parameters root must have "type": "object"`,
		},
		{
			name:     "too deep",
			provider: ProviderOpenAI,
			def:      ToolDefinition{Name: "deep", Parameters: nestedSchema(12)},
			message:  "schema nesting depth 12 exceeds 10",
		},
		{
			name:     "null type",
			provider: ProviderGemini,
			def: ToolDefinition{Name: "nullable", Description: "d", Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"v": map[string]any{"type": []any{"string", "null"}}},
			}},
			message: `type "null" is not supported`,
		},
		{
			name:     "oneOf keyword",
			provider: ProviderGemini,
			def: ToolDefinition{Name: "union", Description: "d", Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{"v": map[string]any{
					"oneOf": []any{map[string]any{"type": "string"}, map[string]any{"type": "integer"}},
				}},
			}},
			message: `keyword "oneOf" is not supported`,
		},
		{
			name:     "meta-schema violation",
			provider: ProviderOllama,
			def:      ToolDefinition{Name: "meta", Parameters: map[string]any{"type": "object", "minProperties": -1}},
			message:  "parameters are not a valid JSON Schema",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ValidateDefinitions(tt.provider, DefaultProviderRules()[tt.provider], []ToolDefinition{tt.def})
			assert.False(t, report.Valid)
			assert.Equal(t, []string{tt.def.Name}, report.InvalidTools)
			require.NotEmpty(t, report.Messages)
			assert.Contains(t, strings.Join(report.Messages, "\n"), tt.message)
			assert.True(t, strings.HasPrefix(report.Messages[0], fmt.Sprintf("tool %q: ", tt.def.Name)))
		})
	}
}

func TestValidateToolsForProvider_DoesNotMutate(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.RegisterTools(weatherDef(), ToolDefinition{Name: "bad name"})
	require.NoError(t, err)
	before := reg.GetAllTools()
	report := reg.ValidateToolsForProvider(ProviderOpenAI)
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"bad name"}, report.InvalidTools)
	assert.Equal(t, before, reg.GetAllTools())
	assert.Equal(t, 2, reg.Len())
}

func TestValidateDefinitions_MaxTools(t *testing.T) {
	rules := ProviderRules{MaxTools: 2}
	defs := []ToolDefinition{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	report := ValidateDefinitions("tiny", rules, defs)
	assert.False(t, report.Valid)
	assert.Empty(t, report.InvalidTools)
	assert.Equal(t, []string{"3 tools declared, provider tiny accepts at most 2"}, report.Messages)
}

func TestWithProviderRules(t *testing.T) {
	reg := NewRegistry(WithProviderRules("Internal", ProviderRules{
		NamePattern:       regexp.MustCompile(`^int_[a-z]+$`),
		RequireObjectRoot: true,
	}))
	_, err := reg.RegisterTools(ToolDefinition{Name: "int_ok"}, ToolDefinition{Name: "external"})
	require.NoError(t, err)
	report := reg.ValidateToolsForProvider("internal")
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"external"}, report.InvalidTools)

	// built-ins survive custom additions
	assert.True(t, reg.ValidateToolsForProvider(ProviderOpenAI).Valid)
}

func TestValidationReport_Err(t *testing.T) {
	report := ValidationReport{Provider: "openai", Valid: false, InvalidTools: []string{"x"}, Messages: []string{"m"}}
	err := report.Err()
	var pve *ProviderValidationError
	require.ErrorAs(t, err, &pve)
	pve.InvalidTools[0] = "changed"
	assert.Equal(t, "x", report.InvalidTools[0])
}

func TestDefaultProviderRules_FreshCopy(t *testing.T) {
	a := DefaultProviderRules()
	delete(a, ProviderOpenAI)
	assert.Contains(t, DefaultProviderRules(), ProviderOpenAI)
}
