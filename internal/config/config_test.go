package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolpipe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, toolpipe.DefaultExecutorConfig(), cfg.Executor.ToolpipeConfig())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, toolpipe.ProviderOpenAI, cfg.Provider)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9090
executor:
  tool_timeout: 5s
  max_retries: 1
  parallel: false
  retry_backoff: 100ms
provider: anthropic
manifest: tools.yaml
log:
  level: debug
  format: console
`)
	t.Setenv("TOOLPIPE_EXECUTOR_MAX_RETRIES", "4")
	t.Setenv("TOOLPIPE_SERVER_ADDR", ":7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, toolpipe.ExecutorConfig{
		ToolTimeout:  5 * time.Second,
		MaxRetries:   4,
		RetryBackoff: 100 * time.Millisecond,
	}, cfg.Executor.ToolpipeConfig())
	assert.Equal(t, toolpipe.ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "tools.yaml", cfg.Manifest)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, "provider: carrier-pigeon\nexecutor:\n  max_retries: -1\nmetrics:\n  path: metrics\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retries")
	assert.Contains(t, err.Error(), "metrics.path")
	assert.Contains(t, err.Error(), "carrier-pigeon")
}
