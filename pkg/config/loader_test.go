package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRunnerConfig().ConcurrencyDefault, cfg.ConcurrencyDefault)
	assert.Equal(t, "./runs", cfg.RunsDir)
}

func TestLoad_UserValuesOverrideDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memorybench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrency_default: 16\nruns_dir: /var/memorybench/runs\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.ConcurrencyDefault)
	assert.Equal(t, "/var/memorybench/runs", cfg.RunsDir)
	assert.Equal(t, DefaultRunnerConfig().Retry.MaxRetries, cfg.Retry.MaxRetries, "unset fields still come from defaults")
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("MEMORYBENCH_PG_DSN", "postgres://u:p@host/db")
	path := filepath.Join(t.TempDir(), "memorybench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("postgres_backend:\n  enabled: true\n  dsn: ${MEMORYBENCH_PG_DSN}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@host/db", cfg.PostgresBackend.DSN)
}

func TestLoad_RejectsPostgresEnabledWithoutDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memorybench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("postgres_backend:\n  enabled: true\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoad_RejectsMaxDelayBelowBaseDelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memorybench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  base_delay_ms: 5000\n  max_delay_ms: 100\n  max_retries: 3\n  jitter_factor: 0.1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
