// Package toolpipeotel traces tool invocations with OpenTelemetry.
package toolpipeotel

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/toolpipe"
)

const (
	instrumentationName = "github.com/skosovsky/toolpipe"

	// SpanInvoke is the name of the span wrapping one implementation attempt.
	SpanInvoke = "toolpipe.invoke"

	AttrToolName  = "toolpipe.tool.name"
	AttrArgsBytes = "toolpipe.tool.args_bytes"
	AttrErrorCode = "toolpipe.error.code"
	AttrCallID    = "toolpipe.call.id"
	AttrAttempts  = "toolpipe.call.attempts"
)

type config struct {
	provider trace.TracerProvider
}

// Option configures the middleware.
type Option func(*config)

// WithTracerProvider sets the provider spans are created from. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.provider = tp
		}
	}
}

func newConfig(opts []Option) config {
	c := config{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Middleware returns a toolpipe.Middleware that opens a span around every attempt.
// Failed attempts record the error and its toolpipe error code.
func Middleware(opts ...Option) toolpipe.Middleware {
	c := newConfig(opts)
	tracer := c.provider.Tracer(instrumentationName)
	return func(name string, next toolpipe.Implementation) toolpipe.Implementation {
		return &tracedImpl{name: name, next: next, tracer: tracer}
	}
}

type tracedImpl struct {
	name   string
	next   toolpipe.Implementation
	tracer trace.Tracer
}

func (t *tracedImpl) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	ctx, span := t.tracer.Start(ctx, SpanInvoke,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrToolName, t.name),
			attribute.Int(AttrArgsBytes, len(args)),
		),
	)
	defer span.End()

	res, err := t.next.Invoke(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorCode, string(toolpipe.Classify(err))))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// Timeout keeps the wrapped implementation's budget visible to the executor.
func (t *tracedImpl) Timeout() time.Duration {
	if to, ok := t.next.(toolpipe.TimeoutOverrider); ok {
		return to.Timeout()
	}
	return 0
}

// AfterExecute returns a hook for toolpipe.WithOnAfterExecute that adds the
// final result of a call as an event on the span found in ctx.
func AfterExecute() func(context.Context, toolpipe.ToolCallRequest, toolpipe.ToolCallResult, time.Duration) {
	return func(ctx context.Context, req toolpipe.ToolCallRequest, res toolpipe.ToolCallResult, dur time.Duration) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		attrs := []attribute.KeyValue{
			attribute.String(AttrToolName, req.Name),
			attribute.String(AttrCallID, req.CallID),
			attribute.Int(AttrAttempts, res.Attempts),
			attribute.Bool("toolpipe.call.success", res.Success),
			attribute.Int64("toolpipe.call.duration_ms", dur.Milliseconds()),
		}
		if res.Error != nil {
			attrs = append(attrs, attribute.String(AttrErrorCode, string(res.Error.Code)))
		}
		span.AddEvent("toolpipe.result", trace.WithAttributes(attrs...))
	}
}

var _ toolpipe.TimeoutOverrider = (*tracedImpl)(nil)
