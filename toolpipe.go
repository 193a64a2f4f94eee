package toolpipe

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// ErrorCode classifies a failed tool call. It is the only error detail a
// model sees besides the message.
type ErrorCode string

const (
	CodeToolNotFound         ErrorCode = "tool_not_found"
	CodeInvalidArguments     ErrorCode = "invalid_arguments"
	CodeExecutionTimeout     ErrorCode = "execution_timeout"
	CodeExecutionError       ErrorCode = "execution_error"
	CodeRegistrationConflict ErrorCode = "registration_conflict"
)

// ToolDefinition is the provider-agnostic declaration of a tool shown to a model.
// Parameters is a JSON Schema object (type, properties, required, ...).
type ToolDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
	// Tags are free-form labels for discovery (see GetTools and HasTag).
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ToolCallRequest is a single tool call as produced by a provider adapter.
// Arguments is the raw JSON text emitted by the model; it is untrusted and may be malformed.
type ToolCallRequest struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolError is the failure variant of a ToolCallResult.
type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *ToolError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// ToolCallResult is the outcome of one ToolCallRequest. Exactly one of Output
// (Success == true) or Error is meaningful. Output is always text so provider
// formatting never has to branch on the value's type.
type ToolCallResult struct {
	CallID   string     `json:"call_id"`
	Name     string     `json:"name"`
	Success  bool       `json:"success"`
	Output   string     `json:"output,omitempty"`
	Error    *ToolError `json:"error,omitempty"`
	Attempts int        `json:"attempts"`
}

// Content renders the result as the text handed back to the model.
func (r ToolCallResult) Content() string {
	if r.Success {
		return r.Output
	}
	if r.Error == nil {
		return "Error: unknown failure"
	}
	return "Error [" + string(r.Error.Code) + "]: " + r.Error.Message
}

func succeeded(req ToolCallRequest, output string, attempts int) ToolCallResult {
	return ToolCallResult{CallID: req.CallID, Name: req.Name, Success: true, Output: output, Attempts: attempts}
}

func failed(req ToolCallRequest, code ErrorCode, message string, attempts int) ToolCallResult {
	return ToolCallResult{
		CallID:   req.CallID,
		Name:     req.Name,
		Error:    &ToolError{Code: code, Message: message},
		Attempts: attempts,
	}
}

// Implementation is the executable half of a tool. args is a JSON object;
// the returned value is canonicalized to text by the Executor.
type Implementation interface {
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// ImplementationFunc adapts a plain function to Implementation.
type ImplementationFunc func(ctx context.Context, args json.RawMessage) (any, error)

func (f ImplementationFunc) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	return f(ctx, args)
}

// TimeoutOverrider is implemented by implementations that need a different
// per-attempt budget than ExecutorConfig.ToolTimeout (see WithTimeout).
type TimeoutOverrider interface {
	Timeout() time.Duration
}

// Usage is the token accounting reported by a provider turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderResponse is the provider-neutral shape adapters normalize a completion into.
type ProviderResponse struct {
	Content      string            `json:"content"`
	ToolCalls    []ToolCallRequest `json:"tool_calls,omitempty"`
	FinishReason string            `json:"finish_reason"`
	Usage        Usage             `json:"usage"`
}

// Logger is the minimal logging capability the registry and executor depend on.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func discardLogger() Logger {
	return slog.New(slog.DiscardHandler)
}

var _ Logger = (*slog.Logger)(nil)
