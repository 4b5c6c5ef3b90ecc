package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 900*time.Second, cfg.Worker.MaxRuntime)
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, "pulse.db", cfg.DatabaseDSN())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: mysql
  host: db
  port: 3306
  user: pulse
  password: secret
  name: pulse
worker:
  poll_interval: 2s
sandbox:
  allowed_commands: [cat, grep]
artifacts:
  report_formats: [json, pdf]
`), 0o600))

	t.Setenv("MAX_SCAN_RUNTIME_PER_JOB", "120")
	t.Setenv("ALLOWED_COMMANDS", "cat, stat ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 120*time.Second, cfg.Worker.MaxRuntime)
	assert.Equal(t, []string{"cat", "stat"}, cfg.Sandbox.AllowedCommands)
	assert.Equal(t, "pulse:secret@tcp(db:3306)/pulse?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DatabaseDSN())
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"
	cfg.Scheduler.MaxConcurrent = 0
	cfg.Artifacts.ReportFormats = []string{"docx"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
	assert.Contains(t, err.Error(), "max_concurrent")
	assert.Contains(t, err.Error(), "docx")
}

func TestEnvRejectsNonNumericSeconds(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "SHELL_TIMEOUT" {
			return "soon", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "SHELL_TIMEOUT")
}
