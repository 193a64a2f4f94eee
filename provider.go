package toolpipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"
)

// Built-in provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// ProviderRules are the structural constraints a provider puts on tool
// declarations. Zero values disable the corresponding check.
type ProviderRules struct {
	NamePattern          *regexp.Regexp
	MaxNameLength        int
	MaxDescriptionLength int
	RequireDescription   bool
	// RequireObjectRoot demands "type": "object" at the schema root.
	RequireObjectRoot bool
	// MaxSchemaDepth bounds object nesting (root object is depth 1).
	MaxSchemaDepth     int
	DisallowedTypes    []string
	DisallowedKeywords []string
	// MaxTools bounds how many tools a single request may declare.
	MaxTools int
}

var (
	openAINamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	geminiNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.:-]*$`)
	ollamaNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// DefaultProviderRules returns a fresh copy of the built-in rule sets keyed by
// provider id. OpenAI-compatible gateways share the OpenAI rules.
func DefaultProviderRules() map[string]ProviderRules {
	openAI := ProviderRules{
		NamePattern:          openAINamePattern,
		MaxNameLength:        64,
		MaxDescriptionLength: 1024,
		RequireObjectRoot:    true,
		MaxSchemaDepth:       10,
		MaxTools:             128,
	}
	return map[string]ProviderRules{
		ProviderOpenAI: openAI,
		"azure":        openAI,
		"deepseek":     openAI,
		"openrouter":   openAI,
		ProviderAnthropic: {
			NamePattern:       openAINamePattern,
			MaxNameLength:     64,
			RequireObjectRoot: true,
		},
		ProviderGemini: {
			NamePattern:        geminiNamePattern,
			MaxNameLength:      64,
			RequireDescription: true,
			RequireObjectRoot:  true,
			DisallowedTypes:    []string{"null"},
			DisallowedKeywords: []string{"$ref", "oneOf", "allOf", "not", "patternProperties", "additionalProperties"},
		},
		ProviderOllama: {
			NamePattern:       ollamaNamePattern,
			RequireObjectRoot: true,
		},
	}
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidationReport lists the definitions a provider would reject and why.
type ValidationReport struct {
	Provider     string   `json:"provider"`
	Valid        bool     `json:"valid"`
	InvalidTools []string `json:"invalid_tools"`
	Messages     []string `json:"messages"`
}

// Err returns nil for a valid report, otherwise a *ProviderValidationError.
// Adapters call it before putting definitions on the wire.
func (r ValidationReport) Err() error {
	if r.Valid {
		return nil
	}
	return &ProviderValidationError{
		Provider:     r.Provider,
		InvalidTools: slices.Clone(r.InvalidTools),
		Messages:     slices.Clone(r.Messages),
	}
}

// ValidateDefinitions applies rules to defs. It is pure: defs are only read.
func ValidateDefinitions(providerID string, rules ProviderRules, defs []ToolDefinition) ValidationReport {
	report := ValidationReport{Provider: providerID, InvalidTools: []string{}, Messages: []string{}}
	if rules.MaxTools > 0 && len(defs) > rules.MaxTools {
		report.Messages = append(report.Messages,
			fmt.Sprintf("%d tools declared, provider %s accepts at most %d", len(defs), providerID, rules.MaxTools))
	}
	for _, def := range defs {
		problems := checkDefinition(rules, def)
		if len(problems) == 0 {
			continue
		}
		report.InvalidTools = append(report.InvalidTools, def.Name)
		for _, p := range problems {
			report.Messages = append(report.Messages, fmt.Sprintf("tool %q: %s", def.Name, p))
		}
	}
	report.Valid = len(report.Messages) == 0
	return report
}

func checkDefinition(rules ProviderRules, def ToolDefinition) []string {
	var problems []string
	if rules.MaxNameLength > 0 && len(def.Name) > rules.MaxNameLength {
		problems = append(problems, fmt.Sprintf("name is %d characters, limit is %d", len(def.Name), rules.MaxNameLength))
	}
	if rules.NamePattern != nil && !rules.NamePattern.MatchString(def.Name) {
		problems = append(problems, fmt.Sprintf("name does not match %s", rules.NamePattern))
	}
	if rules.RequireDescription && strings.TrimSpace(def.Description) == "" {
		problems = append(problems, "description is required")
	}
	if rules.MaxDescriptionLength > 0 && len(def.Description) > rules.MaxDescriptionLength {
		problems = append(problems, fmt.Sprintf("description is %d characters, limit is %d", len(def.Description), rules.MaxDescriptionLength))
	}

	schema := def.Parameters
	if schema == nil {
		schema = emptyObjectSchema()
	}
	if err := metaValidate(schema); err != nil {
		problems = append(problems, "parameters are not a valid JSON Schema: "+err.Error())
	}
	if rules.RequireObjectRoot && !slices.Contains(schemaTypes(schema), "object") {
		problems = append(problems, `parameters root must have "type": "object"`)
	}
	if rules.MaxSchemaDepth > 0 {
		if d := schemaDepth(schema); d > rules.MaxSchemaDepth {
			problems = append(problems, fmt.Sprintf("schema nesting depth %d exceeds %d", d, rules.MaxSchemaDepth))
		}
	}
	if len(rules.DisallowedTypes) > 0 || len(rules.DisallowedKeywords) > 0 {
		types, keywords := disallowedUsage(schema, rules)
		for _, t := range types {
			problems = append(problems, fmt.Sprintf("type %q is not supported", t))
		}
		for _, k := range keywords {
			problems = append(problems, fmt.Sprintf("keyword %q is not supported", k))
		}
	}
	return problems
}

// disallowedUsage returns the sorted, de-duplicated disallowed types and keywords found in schema.
func disallowedUsage(schema map[string]any, rules ProviderRules) (types, keywords []string) {
	seenTypes := make(map[string]struct{})
	seenKeywords := make(map[string]struct{})
	walkSubschemas(schema, 1, func(node map[string]any, _ int) {
		for _, t := range schemaTypes(node) {
			if slices.Contains(rules.DisallowedTypes, t) {
				seenTypes[t] = struct{}{}
			}
		}
		for k := range node {
			if slices.Contains(rules.DisallowedKeywords, k) {
				seenKeywords[k] = struct{}{}
			}
		}
	})
	return sortedKeys(seenTypes), sortedKeys(seenKeywords)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// metaValidate checks schema against the JSON Schema meta-schema.
func metaValidate(schema map[string]any) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	doc, err := jsonschemav6.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	c := jsonschemav6.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return err
	}
	_, err = c.Compile("tool.json")
	return err
}
