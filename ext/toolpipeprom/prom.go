// Package toolpipeprom exports executor metrics to Prometheus.
package toolpipeprom

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skosovsky/toolpipe"
)

const (
	defaultNamespace = "toolpipe"
	subsystem        = "executor"

	statusSuccess = "success"
	statusError   = "error"
)

// Collector records per-tool latency, outcomes, and attempt counts.
type Collector struct {
	latency  *prometheus.HistogramVec
	calls    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	attempts *prometheus.HistogramVec
	started  *prometheus.CounterVec
}

type config struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64
}

// Option configures a Collector.
type Option func(*config)

// WithRegisterer sets the registry metrics are registered with. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *config) {
		if r != nil {
			c.registerer = r
		}
	}
}

// WithNamespace overrides the metric namespace ("toolpipe").
func WithNamespace(ns string) Option {
	return func(c *config) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithBuckets overrides the latency histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *config) {
		if len(buckets) > 0 {
			c.buckets = buckets
		}
	}
}

// New creates a Collector and registers its metrics. Registering twice with
// the same registerer reuses the existing collectors.
func New(opts ...Option) *Collector {
	cfg := config{
		registerer: prometheus.DefaultRegisterer,
		namespace:  defaultNamespace,
		buckets:    prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Subsystem: subsystem,
		Name:      "call_duration_seconds",
		Help:      "Tool call latency in seconds including retries, partitioned by tool and status.",
		Buckets:   cfg.buckets,
	}, []string{"tool", "status"})

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: subsystem,
		Name:      "calls_total",
		Help:      "Total tool calls, partitioned by tool and status.",
	}, []string{"tool", "status"})

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Total failed tool calls, partitioned by tool and error code.",
	}, []string{"tool", "code"})

	attempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Subsystem: subsystem,
		Name:      "call_attempts",
		Help:      "Implementation attempts per tool call.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8},
	}, []string{"tool"})

	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: subsystem,
		Name:      "invocations_started_total",
		Help:      "Tool calls that passed validation and reached the implementation.",
	}, []string{"tool"})

	return &Collector{
		latency:  register(cfg.registerer, latency),
		calls:    register(cfg.registerer, calls),
		errors:   register(cfg.registerer, errs),
		attempts: register(cfg.registerer, attempts),
		started:  register(cfg.registerer, started),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Observe records one finished call. Safe on a nil receiver.
func (c *Collector) Observe(name string, res toolpipe.ToolCallResult, d time.Duration) {
	if c == nil {
		return
	}
	status := statusSuccess
	if !res.Success {
		status = statusError
	}
	c.latency.WithLabelValues(name, status).Observe(d.Seconds())
	c.calls.WithLabelValues(name, status).Inc()
	c.attempts.WithLabelValues(name).Observe(float64(res.Attempts))
	if res.Error != nil {
		c.errors.WithLabelValues(name, string(res.Error.Code)).Inc()
	}
}

// BeforeExecute returns a hook for toolpipe.WithOnBeforeExecute.
func (c *Collector) BeforeExecute() func(context.Context, toolpipe.ToolCallRequest) {
	return func(_ context.Context, req toolpipe.ToolCallRequest) {
		c.started.WithLabelValues(req.Name).Inc()
	}
}

// AfterExecute returns a hook for toolpipe.WithOnAfterExecute.
func (c *Collector) AfterExecute() func(context.Context, toolpipe.ToolCallRequest, toolpipe.ToolCallResult, time.Duration) {
	return func(_ context.Context, req toolpipe.ToolCallRequest, res toolpipe.ToolCallResult, d time.Duration) {
		c.Observe(req.Name, res, d)
	}
}

// ExecutorOptions installs both hooks. The executor keeps one hook of each
// kind, so callers with hooks of their own should chain BeforeExecute and
// AfterExecute instead.
func (c *Collector) ExecutorOptions() []toolpipe.ExecutorOption {
	return []toolpipe.ExecutorOption{
		toolpipe.WithOnBeforeExecute(c.BeforeExecute()),
		toolpipe.WithOnAfterExecute(c.AfterExecute()),
	}
}
