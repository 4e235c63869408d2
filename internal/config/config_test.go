package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moduletrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// clearEnv убирает переменные, которые могут прийти из окружения CI.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvConfigPath, "LOG_LEVEL", "LOG_FORMAT", "DB_URL", "RABBITMQ_URL", "REDIS_URL",
		"REDIS_KEY_PREFIX", "REDIS_SESSION_TTL", "API_PORT", "CORS_ORIGINS",
		"SWEEPER_CRON", "SWEEPER_ABANDON_AFTER", "SWEEPER_PORT", "SWEEPER_BATCH_SIZE",
		"AUDIT_PORT", "AUDIT_PREFETCH",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), *cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "*/15 * * * *", cfg.Sweeper.Cron)
	assert.Equal(t, 12*time.Hour, cfg.Sweeper.AbandonAfter)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, `
log_level: debug
database:
  url: postgresql://file/db
redis:
  url: redis://file:6379/0
  session_ttl: 30m
api:
  port: 9000
  cors_origins: ["http://localhost:3000"]
sweeper:
  cron: "*/5 * * * *"
  abandon_after: 8h
`)
	t.Setenv(EnvConfigPath, path)
	t.Setenv("DB_URL", "postgresql://env/db")
	t.Setenv("API_PORT", "9100")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgresql://env/db", cfg.Database.URL, "env wins over file")
	assert.Equal(t, "redis://file:6379/0", cfg.Redis.URL)
	assert.Equal(t, 30*time.Minute, cfg.Redis.SessionTTL)
	assert.Equal(t, 9100, cfg.API.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.CORSOrigins)
	assert.Equal(t, "*/5 * * * *", cfg.Sweeper.Cron)
	assert.Equal(t, 8*time.Hour, cfg.Sweeper.AbandonAfter)
	// Не указанное в файле остаётся по умолчанию
	assert.Equal(t, 100, cfg.Sweeper.BatchSize)
}

func TestLoad_UnknownField(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "databse:\n  url: x\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("API_PORT", "eighty")
	_, err := Load("")
	require.ErrorContains(t, err, "API_PORT")
}

func TestApplyEnv_Duration(t *testing.T) {
	cfg := Default()
	env := map[string]string{"SWEEPER_ABANDON_AFTER": "90m"}

	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, 90*time.Minute, cfg.Sweeper.AbandonAfter)

	env["SWEEPER_ABANDON_AFTER"] = "soon"
	require.Error(t, cfg.applyEnv(func(k string) string { return env[k] }))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db url", func(c *Config) { c.Database.URL = "" }},
		{"port out of range", func(c *Config) { c.API.Port = 70000 }},
		{"empty cron", func(c *Config) { c.Sweeper.Cron = " " }},
		{"zero abandon_after", func(c *Config) { c.Sweeper.AbandonAfter = 0 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
