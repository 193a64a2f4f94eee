// Package anthropicadapter converts between toolpipe and the Anthropic
// Messages API tool_use / tool_result blocks.
package anthropicadapter

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/skosovsky/toolpipe"
	"github.com/skosovsky/toolpipe/adapters/internal/calls"
)

const (
	blockText    = "text"
	blockToolUse = "tool_use"
)

// Adapter is stateless apart from its options and safe for concurrent use.
type Adapter struct {
	opts calls.Options
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithProviderID changes the rule set tools are validated against. Defaults to toolpipe.ProviderAnthropic.
func WithProviderID(id string) Option {
	return func(a *Adapter) { a.opts.ProviderID = id }
}

// WithArgumentRepair enables jsonrepair on malformed tool inputs.
func WithArgumentRepair() Option {
	return func(a *Adapter) { a.opts.Repair = true }
}

// WithLogger sets the logger for repair and validation events.
func WithLogger(l toolpipe.Logger) Option {
	return func(a *Adapter) { a.opts.Logger = l }
}

// New creates an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{opts: calls.Options{ProviderID: toolpipe.ProviderAnthropic}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tools validates every tool in reg and converts them to request tools.
func (a *Adapter) Tools(reg *toolpipe.Registry) ([]anthropic.ToolUnionParam, error) {
	defs, err := a.opts.Validate(reg)
	if err != nil {
		return nil, err
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := inputSchema(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", def.Name, err)
		}
		tool := anthropic.ToolParam{Name: def.Name, InputSchema: schema}
		if def.Description != "" {
			tool.Description = anthropic.String(def.Description)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools, nil
}

// inputSchema splits a JSON Schema object into the SDK's typed fields;
// keywords other than type, properties and required travel as extra fields.
func inputSchema(params map[string]any) (anthropic.ToolInputSchemaParam, error) {
	var schema anthropic.ToolInputSchemaParam
	for k, v := range params {
		switch k {
		case "type":
		case "properties":
			schema.Properties = v
		case "required":
			req, err := stringList(v)
			if err != nil {
				return schema, err
			}
			schema.Required = req
		default:
			if schema.ExtraFields == nil {
				schema.ExtraFields = make(map[string]any)
			}
			schema.ExtraFields[k] = v
		}
	}
	return schema, nil
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("required entry %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("required must be a list, got %T", v)
	}
}

// ToolCallRequests extracts tool_use blocks, in order, as executor requests.
func (a *Adapter) ToolCallRequests(blocks []anthropic.ContentBlockUnion) []toolpipe.ToolCallRequest {
	var reqs []toolpipe.ToolCallRequest
	for _, b := range blocks {
		if b.Type != blockToolUse {
			continue
		}
		reqs = append(reqs, a.opts.Request(b.ID, b.Name, string(b.Input)))
	}
	return reqs
}

// NormalizeResponse flattens msg into a ProviderResponse. Text blocks are
// joined with newlines.
func (a *Adapter) NormalizeResponse(msg anthropic.Message) toolpipe.ProviderResponse {
	var text []string
	for _, b := range msg.Content {
		if b.Type == blockText {
			text = append(text, b.Text)
		}
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return toolpipe.ProviderResponse{
		Content:      strings.Join(text, "\n"),
		ToolCalls:    a.ToolCallRequests(msg.Content),
		FinishReason: string(msg.StopReason),
		Usage: toolpipe.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}
}

// ToolResultBlocks renders results as tool_result blocks, one per result, in order.
func ToolResultBlocks(results []toolpipe.ToolCallResult) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Content(), !r.Success))
	}
	return blocks
}

// ToolResultMessage wraps results in the user turn that answers a tool_use turn.
func ToolResultMessage(results []toolpipe.ToolCallResult) anthropic.MessageParam {
	return anthropic.NewUserMessage(ToolResultBlocks(results)...)
}
