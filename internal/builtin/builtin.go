// Package builtin provides the demo tools shipped with the toolpipe host.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skosovsky/toolpipe"
)

// EchoArgs are the arguments of the echo tool.
type EchoArgs struct {
	Text string `json:"text" jsonschema:"text returned unchanged"`
}

// SumArgs are the arguments of the sum tool.
type SumArgs struct {
	Numbers []float64 `json:"numbers" jsonschema:"numbers to add"`
}

func (a SumArgs) Validate() error {
	if len(a.Numbers) == 0 {
		return errors.New("numbers must not be empty")
	}
	return nil
}

// SumResult is the output of the sum tool.
type SumResult struct {
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

// ClockArgs are the arguments of the clock tool.
type ClockArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA time zone, UTC when empty"`
}

// ClockResult is the output of the clock tool.
type ClockResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Unix     int64  `json:"unix"`
}

type options struct {
	now     func() time.Time
	timeout time.Duration
}

// Option configures the built-in tools.
type Option func(*options)

// WithClock replaces time.Now for the clock tool.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTimeout gives every built-in tool its own attempt budget.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Tools builds echo, sum, and clock.
func Tools(opts ...Option) ([]toolpipe.Tool, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	var toolOpts []toolpipe.ToolOption
	if o.timeout > 0 {
		toolOpts = append(toolOpts, toolpipe.WithTimeout(o.timeout))
	}
	with := func(tags ...string) []toolpipe.ToolOption {
		return append([]toolpipe.ToolOption{toolpipe.WithTags(tags...)}, toolOpts...)
	}

	echo, err := toolpipe.NewTool("echo", "Returns the given text unchanged.",
		func(_ context.Context, a EchoArgs) (string, error) { return a.Text, nil },
		with("read_only", "demo")...)
	if err != nil {
		return nil, err
	}

	sum, err := toolpipe.NewTool("sum", "Adds a list of numbers.",
		func(_ context.Context, a SumArgs) (SumResult, error) {
			var total float64
			for _, n := range a.Numbers {
				total += n
			}
			return SumResult{Sum: total, Count: len(a.Numbers)}, nil
		},
		with("read_only", "math")...)
	if err != nil {
		return nil, err
	}

	clock, err := toolpipe.NewTool("clock", "Current time in a time zone.",
		func(_ context.Context, a ClockArgs) (ClockResult, error) {
			name := a.Timezone
			if name == "" {
				name = "UTC"
			}
			loc, err := time.LoadLocation(name)
			if err != nil {
				return ClockResult{}, &toolpipe.ClientError{
					Reason: fmt.Sprintf("unknown timezone %q", name),
					Err:    toolpipe.ErrValidation,
				}
			}
			now := o.now().In(loc)
			return ClockResult{Time: now.Format(time.RFC3339), Timezone: loc.String(), Unix: now.Unix()}, nil
		},
		with("read_only", "time")...)
	if err != nil {
		return nil, err
	}

	return []toolpipe.Tool{echo, sum, clock}, nil
}

// Install registers every built-in tool with reg and exec.
func Install(reg *toolpipe.Registry, exec *toolpipe.Executor, opts ...Option) error {
	tools, err := Tools(opts...)
	if err != nil {
		return err
	}
	return toolpipe.Install(reg, exec, tools...)
}
