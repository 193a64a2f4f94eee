package toolpipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Tool pairs a declaration with the implementation that serves it. Install
// registers both halves.
type Tool struct {
	Definition     ToolDefinition
	Implementation Implementation
}

// builtImpl is the Implementation built by NewTool and NewDynamicTool.
type builtImpl struct {
	invoke  func(context.Context, json.RawMessage) (any, error)
	timeout time.Duration
}

func (b *builtImpl) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	return b.invoke(ctx, args)
}

func (b *builtImpl) Timeout() time.Duration { return b.timeout }

// NewTool builds a Tool from a typed function. Schema and validation are delegated to Extractor[T].
// Invoke runs ParseAndValidate, then fn; the result R goes back to the executor for canonicalization.
// Errors from fn are returned as-is so their text reaches the model; a ClientError is reported as
// invalid_arguments and is not retried.
// Returns an error if schema generation fails (e.g. unsupported type).
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(name) == "" {
		return Tool{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if fn == nil {
		return Tool{}, fmt.Errorf("%w: tool %q: handler must not be nil", ErrInvalidDefinition, name)
	}
	ext, err := NewExtractor[T](o.strict)
	if err != nil {
		return Tool{}, err
	}
	invoke := func(ctx context.Context, argsJSON json.RawMessage) (any, error) {
		args, err := ext.ParseAndValidate(argsJSON)
		if err != nil {
			return nil, err
		}
		res, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return Tool{
		Definition: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  ext.Schema(),
			Tags:        slices.Clone(o.tags),
		},
		Implementation: &builtImpl{invoke: invoke, timeout: o.timeout},
	}, nil
}

// NewDynamicTool creates a Tool from a raw JSON Schema map and a function that receives
// validated JSON. Useful for runtime API integration (e.g. OpenAPI/Swagger). Layer 1
// (schema) validation only. schemaMap and fn must be non-nil.
// The provided schemaMap is not mutated; a defensive copy is made before any modifications (e.g. WithStrict).
func NewDynamicTool(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, argsJSON json.RawMessage) (any, error),
	opts ...ToolOption,
) (Tool, error) {
	var o toolOptions
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(name) == "" {
		return Tool{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if schemaMap == nil {
		return Tool{}, errors.New("dynamic schema map must not be nil")
	}
	if fn == nil {
		return Tool{}, errors.New("dynamic tool handler must not be nil")
	}
	schemaCopy, err := cloneSchema(schemaMap)
	if err != nil {
		return Tool{}, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	if o.strict {
		applyStrictMode(schemaCopy)
	}
	stripSchemaIDs(schemaCopy)
	compiled, err := compileRawSchema(schemaCopy)
	if err != nil {
		return Tool{}, fmt.Errorf("failed to compile dynamic schema: %w", err)
	}
	invoke := func(ctx context.Context, argsJSON json.RawMessage) (any, error) {
		if len(argsJSON) == 0 {
			argsJSON = json.RawMessage(`{}`)
		}
		var v any
		if err := json.Unmarshal(argsJSON, &v); err != nil {
			return nil, wrapJSONParseError(err)
		}
		if err := validateAgainstSchema(compiled, v); err != nil {
			return nil, err
		}
		return fn(ctx, argsJSON)
	}
	return Tool{
		Definition: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters:  schemaCopy,
			Tags:        slices.Clone(o.tags),
		},
		Implementation: &builtImpl{invoke: invoke, timeout: o.timeout},
	}, nil
}

// Install registers each tool's definition in reg and binds its implementation
// in exec. Either side may be nil. Conflicts and invalid definitions are
// collected and returned together; the remaining tools are still installed.
func Install(reg *Registry, exec *Executor, tools ...Tool) error {
	var errs []error
	for _, t := range tools {
		name := t.Definition.Name
		if reg != nil {
			ok, err := reg.RegisterTool(t.Definition)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !ok {
				errs = append(errs, fmt.Errorf("tool %q: %s in registry", name, CodeRegistrationConflict))
			}
		}
		if exec != nil && t.Implementation != nil && strings.TrimSpace(name) != "" {
			if !exec.RegisterToolImplementation(name, t.Implementation) {
				errs = append(errs, fmt.Errorf("tool %q: %s in executor", name, CodeRegistrationConflict))
			}
		}
	}
	return errors.Join(errs...)
}

var (
	_ Implementation   = (*builtImpl)(nil)
	_ TimeoutOverrider = (*builtImpl)(nil)
)
