package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "clearity.db", cfg.DBPath)
	assert.Equal(t, 5, cfg.MaxTasksPerTurn)
	assert.Equal(t, 15, cfg.HistoryWindow)
	assert.Equal(t, 3, cfg.MemoryLimit)
	assert.False(t, cfg.ProviderEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("OPENROUTER_API_KEY", "key")
	t.Setenv("PIPELINE_MAX_TASKS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.MaxTasksPerTurn)
	assert.True(t, cfg.ProviderEnabled())
}

func TestValidateRejectsBadTaskCap(t *testing.T) {
	t.Setenv("PIPELINE_MAX_TASKS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestJWTSecretRequiredOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AUTH_MODE", "jwt")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AuthEnabled())
}

func TestAuthDisabled(t *testing.T) {
	t.Setenv("AUTH_MODE", "none")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AuthEnabled())
}
