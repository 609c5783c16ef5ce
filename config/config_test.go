package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimit.Budget)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.Spacing)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, time.Minute, cfg.Cache.PostsFresh)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ProfilesFresh)
	assert.Equal(t, 10*time.Minute, cfg.Cache.RelationsFresh)
	assert.Equal(t, 3, cfg.Sync.FailureThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Sync.Heartbeat)
	assert.Equal(t, 5, cfg.Sync.MaxReconnects)
	assert.Len(t, cfg.Media.Gateways, 3)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SOLCIALS_SERVER_PORT", ":9000")
	t.Setenv("SOLCIALS_RATE_LIMIT_BUDGET", "10")
	t.Setenv("SOLCIALS_SYNC_POLL_INTERVAL", "90s")
	t.Setenv("SOLCIALS_CACHE_BACKEND", "redis")
	t.Setenv("SOLCIALS_AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, 10, cfg.RateLimit.Budget)
	assert.Equal(t, 90*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SOLCIALS_CACHE_BACKEND", "memcached")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}
