package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":9091", cfg.Server.MetricsAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "./data", cfg.Store.Root)
	assert.Equal(t, "reviewd", cfg.Telemetry.ServiceName)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRate)
	assert.Empty(t, cfg.Telemetry.TraceEndpoint, "trace export is off until an endpoint is set")
}

func TestLoad_InvalidTelemetrySamplingRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telemetry:
  sampling_rate: 3.5
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampling_rate")
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7070"
logging:
  level: debug
  format: json
llm:
  provider: openai
  model: gpt-4o
store:
  root: /var/lib/reviewd
validation:
  identifier_quorum: 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "/var/lib/reviewd", cfg.Store.Root)
	assert.Equal(t, 5, cfg.Validation.IdentifierQuorum)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7070\"\n"), 0o600))

	t.Setenv("REVIEWD_SERVER_ADDR", ":6060")
	t.Setenv("REVIEWD_LLM_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationRejectsBadProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: bard\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}

func TestLoad_ValidationRejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: shouty\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsCollidingListeners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8080"
  metrics_addr: ":8080"
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_ClassifyRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
classify:
  - name: invoice
    regex: (?i)invoice
    kind: invoice
    weight: 0.9
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Classify, 1)
	assert.Equal(t, "invoice", cfg.Classify[0].Name)
}
