package toolpipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for toolpipe. Use errors.Is to check.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrTimeout           = errors.New("tool execution timeout")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidDefinition = errors.New("invalid tool definition")
	ErrShutdown          = errors.New("executor is shutting down")
)

// ClientError is an error that should be sent back to the LLM for self-correction
// (e.g. invalid JSON, schema validation failure, bad enum value).
// Do not expose stack traces or internal details to the LLM.
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ClientError struct {
	Reason string
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains (e.g. errors.Is(err, ErrValidation)).
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (panic, broken invariant).
// The LLM should not see the underlying error message or stack.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// ProviderValidationError is returned by ValidationReport.Err when a tool set
// cannot be sent to a provider as-is.
type ProviderValidationError struct {
	Provider     string
	InvalidTools []string
	Messages     []string
}

func (e *ProviderValidationError) Error() string {
	return fmt.Sprintf("tools rejected for provider %q: %s", e.Provider, strings.Join(e.Messages, "; "))
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures.
// Used by the executor, Extractor.ParseAndValidate and dynamic tools so parse errors are consistent.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error(), Err: ErrValidation}
}

// Classify maps an attempt error onto the ErrorCode a ToolCallResult reports.
func Classify(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeExecutionTimeout
	case IsClientError(err):
		return CodeInvalidArguments
	case errors.Is(err, ErrToolNotFound):
		return CodeToolNotFound
	default:
		return CodeExecutionError
	}
}

// retryable reports whether another attempt may change the outcome.
// Structural failures (missing binding, bad input) are retry-invariant.
func retryable(err error) bool {
	switch Classify(err) {
	case CodeExecutionTimeout, CodeExecutionError:
		return !errors.Is(err, ErrShutdown) && !errors.Is(err, context.Canceled)
	default:
		return false
	}
}
