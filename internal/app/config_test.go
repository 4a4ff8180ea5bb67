package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(2), cfg.DefaultRoleID)
	assert.Equal(t, "Admin", cfg.AdminRoleName)
	assert.Equal(t, 2*time.Second, cfg.AuthzTimeout)
	assert.Equal(t, 10, cfg.LoginRateLimit)
	assert.Equal(t, "0 3 * * *", cfg.TokenPruneCron)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("DEFAULT_ROLE_ID", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(7), cfg.DefaultRoleID)
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadConfigRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LOGIN_RATE_LIMIT", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsBlankAdminRole(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ADMIN_ROLE_NAME", "   ")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_ROLE_NAME")
}

func TestLoadConfigTrimsAdminRole(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ADMIN_ROLE_NAME", " Owner ")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "Owner", cfg.AdminRoleName)
}
