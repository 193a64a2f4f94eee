package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/skosovsky/toolpipe"
	"github.com/skosovsky/toolpipe/ext/toolpipeotel"
	"github.com/skosovsky/toolpipe/ext/toolpipeprom"
	"github.com/skosovsky/toolpipe/ext/toolpipezap"
	"github.com/skosovsky/toolpipe/internal/builtin"
	"github.com/skosovsky/toolpipe/internal/config"
	"github.com/skosovsky/toolpipe/internal/logging"
	"github.com/skosovsky/toolpipe/internal/manifest"
)

type afterHook = func(context.Context, toolpipe.ToolCallRequest, toolpipe.ToolCallResult, time.Duration)

// app is the wired registry, executor, and their observers.
type app struct {
	cfg     *config.Config
	zap     *zap.Logger
	logger  toolpipe.Logger
	metrics *prometheus.Registry
	reg     *toolpipe.Registry
	exec    *toolpipe.Executor
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	zl, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger := toolpipezap.New(zl)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := toolpipeprom.New(toolpipeprom.WithRegisterer(metrics))

	reg := toolpipe.NewRegistry(toolpipe.WithRegistryLogger(logger))
	exec := toolpipe.NewExecutor(cfg.Executor.ToolpipeConfig(),
		toolpipe.WithLogger(logger),
		toolpipe.WithRegistry(reg),
		toolpipe.WithOnBeforeExecute(collector.BeforeExecute()),
		toolpipe.WithOnAfterExecute(chain(collector.AfterExecute(), toolpipeotel.AfterExecute())),
	)
	exec.Use(toolpipeotel.Middleware(), toolpipe.WithRecovery())

	if err := builtin.Install(reg, exec); err != nil {
		return nil, fmt.Errorf("install built-in tools: %w", err)
	}
	if cfg.Manifest != "" {
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return nil, err
		}
		if err := m.Install(reg, exec); err != nil {
			return nil, fmt.Errorf("install manifest tools: %w", err)
		}
	}
	logger.Debug("tools installed", "count", reg.Len(), "provider", cfg.Provider)
	return &app{cfg: cfg, zap: zl, logger: logger, metrics: metrics, reg: reg, exec: exec}, nil
}

func chain(hooks ...afterHook) afterHook {
	return func(ctx context.Context, req toolpipe.ToolCallRequest, res toolpipe.ToolCallResult, d time.Duration) {
		for _, h := range hooks {
			h(ctx, req, res, d)
		}
	}
}

func (a *app) close() {
	_ = a.zap.Sync()
}
