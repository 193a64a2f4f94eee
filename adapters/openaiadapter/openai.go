// Package openaiadapter converts between toolpipe and the OpenAI chat
// completions wire format.
package openaiadapter

import (
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/skosovsky/toolpipe"
	"github.com/skosovsky/toolpipe/adapters/internal/calls"
)

// ErrNoChoices is returned when a completion carries no choices to normalize.
var ErrNoChoices = errors.New("openaiadapter: response has no choices")

// Adapter is stateless apart from its options and safe for concurrent use.
type Adapter struct {
	opts calls.Options
	// strict marks every function definition as strict.
	strict bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithProviderID changes the rule set tools are validated against. Defaults
// to toolpipe.ProviderOpenAI; OpenAI-compatible backends can reuse the adapter.
func WithProviderID(id string) Option {
	return func(a *Adapter) { a.opts.ProviderID = id }
}

// WithArgumentRepair enables jsonrepair on malformed arguments.
func WithArgumentRepair() Option {
	return func(a *Adapter) { a.opts.Repair = true }
}

// WithLogger sets the logger for repair and validation events.
func WithLogger(l toolpipe.Logger) Option {
	return func(a *Adapter) { a.opts.Logger = l }
}

// WithStrictFunctions sets strict on every exported function definition.
func WithStrictFunctions() Option {
	return func(a *Adapter) { a.strict = true }
}

// New creates an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{opts: calls.Options{ProviderID: toolpipe.ProviderOpenAI}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tools validates every tool in reg and converts them to request tools. Any
// invalid definition fails the whole set with a *toolpipe.ProviderValidationError.
func (a *Adapter) Tools(reg *toolpipe.Registry) ([]openai.Tool, error) {
	defs, err := a.opts.Validate(reg)
	if err != nil {
		return nil, err
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Strict:      a.strict,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools, nil
}

// ToolCallRequests converts assistant tool_calls into executor requests.
func (a *Adapter) ToolCallRequests(toolCalls []openai.ToolCall) []toolpipe.ToolCallRequest {
	reqs := make([]toolpipe.ToolCallRequest, 0, len(toolCalls))
	for _, tc := range toolCalls {
		reqs = append(reqs, a.opts.Request(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return reqs
}

// NormalizeResponse flattens the first choice of resp into a ProviderResponse.
func (a *Adapter) NormalizeResponse(resp openai.ChatCompletionResponse) (toolpipe.ProviderResponse, error) {
	if len(resp.Choices) == 0 {
		return toolpipe.ProviderResponse{}, ErrNoChoices
	}
	choice := resp.Choices[0]
	return toolpipe.ProviderResponse{
		Content:      choice.Message.Content,
		ToolCalls:    a.ToolCallRequests(choice.Message.ToolCalls),
		FinishReason: string(choice.FinishReason),
		Usage: toolpipe.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// AssistantMessage rebuilds the assistant turn that requested reqs, so it can
// precede the tool messages in the next request.
func AssistantMessage(content string, reqs []toolpipe.ToolCallRequest) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}
	for _, r := range reqs {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   r.CallID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      r.Name,
				Arguments: r.Arguments,
			},
		})
	}
	return msg
}

// ToolMessages renders results as role=tool messages, one per result, in order.
func ToolMessages(results []toolpipe.ToolCallResult) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    r.Content(),
			Name:       r.Name,
			ToolCallID: r.CallID,
		})
	}
	return msgs
}
