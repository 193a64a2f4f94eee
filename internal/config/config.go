// Package config loads host configuration from file, environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skosovsky/toolpipe"
	"github.com/skosovsky/toolpipe/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. TOOLPIPE_EXECUTOR_MAX_RETRIES.
const EnvPrefix = "TOOLPIPE"

// Config is the full host configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Log      logging.Config `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	// Provider is the rule set tools are checked against on startup.
	Provider string `mapstructure:"provider"`
	// Manifest is an optional YAML tool manifest loaded next to the built-ins.
	Manifest string `mapstructure:"manifest"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ExecutorConfig struct {
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Parallel        bool          `mapstructure:"parallel"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ToolpipeConfig converts the executor section to the library type.
func (c ExecutorConfig) ToolpipeConfig() toolpipe.ExecutorConfig {
	return toolpipe.ExecutorConfig{
		ToolTimeout:       c.ToolTimeout,
		MaxRetries:        c.MaxRetries,
		ParallelExecution: c.Parallel,
		MaxConcurrency:    c.MaxConcurrency,
		RetryBackoff:      c.RetryBackoff,
		MaxRetryBackoff:   c.MaxRetryBackoff,
	}
}

func setDefaults(v *viper.Viper) {
	def := toolpipe.DefaultExecutorConfig()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("executor.tool_timeout", def.ToolTimeout)
	v.SetDefault("executor.max_retries", def.MaxRetries)
	v.SetDefault("executor.parallel", def.ParallelExecution)
	v.SetDefault("executor.max_concurrency", 0)
	v.SetDefault("executor.retry_backoff", time.Duration(0))
	v.SetDefault("executor.max_retry_backoff", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("provider", toolpipe.ProviderOpenAI)
	v.SetDefault("manifest", "")
}

// Load reads configuration. An explicit path must exist; with an empty path
// toolpipe.yaml is looked up in the working directory and $HOME/.config/toolpipe,
// and its absence is not an error. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("toolpipe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/toolpipe")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the host cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Executor.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("executor.max_retries must be >= 0, got %d", c.Executor.MaxRetries))
	}
	if c.Executor.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("executor.tool_timeout must be >= 0, got %s", c.Executor.ToolTimeout))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}
	if _, ok := toolpipe.DefaultProviderRules()[strings.ToLower(strings.TrimSpace(c.Provider))]; !ok {
		errs = append(errs, fmt.Errorf("provider %q has no built-in rules", c.Provider))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
