package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.URL)
	assert.True(t, cfg.Security.Scanner.Enabled)
	assert.Equal(t, 60, cfg.Security.RateLimit.PerIPPerMinute)
	assert.Equal(t, 120, cfg.Security.RateLimit.PerUserPerMinute)
	assert.Equal(t, 15*time.Minute, cfg.Security.RateLimit.BlockDuration)
	assert.Equal(t, 4, cfg.Security.Audit.Workers)
	assert.Equal(t, 10000, cfg.Security.Audit.QueueSize)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
environment: production
server:
  port: 9090
security:
  jwt_secret: file-secret
  rate_limit:
    per_ip_per_minute: 5
  audit:
    workers: 2
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Security.RateLimit.PerIPPerMinute)
	assert.Equal(t, 2, cfg.Security.Audit.Workers)
	// Untouched values keep their defaults.
	assert.Equal(t, 1000, cfg.Security.RateLimit.PerIPPerHour)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BSEC_ENVIRONMENT", "staging")
	t.Setenv("BSEC_SERVER_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: bogus\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsProductionWithoutJWTSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: production\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
