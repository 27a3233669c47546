package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()

	assert.Equal(t, ":8080", c.GetPort())
	assert.Equal(t, 10*time.Minute, c.GetRefreshInterval())
	assert.Equal(t, 11*time.Minute, c.GetRefreshWindow())
	assert.Equal(t, 15*time.Minute, c.GetAccessTokenExpiry())
	assert.Equal(t, 7*24*time.Hour, c.GetRefreshTokenExpiry())
	assert.Equal(t, 5, c.GetMaxFailedLogins())
	assert.Equal(t, "file", c.GetStorageBackend())
	assert.True(t, c.GetEnableRateLimiting())
	assert.False(t, c.GetVerifyTokens())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("REFRESH_INTERVAL", "30s")
	t.Setenv("REFRESH_WINDOW", "not-a-duration")
	t.Setenv("MAX_FAILED_LOGINS", "3")
	t.Setenv("LOGIN_RATE_LIMIT", "0")
	t.Setenv("VERIFY_TOKENS", "true")
	t.Setenv("PORTAL_API_URL", "https://auth.example.com/")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	c := config.New()

	assert.Equal(t, ":9090", c.GetPort())
	assert.Equal(t, 30*time.Second, c.GetRefreshInterval())
	assert.Equal(t, 11*time.Minute, c.GetRefreshWindow())
	assert.Equal(t, 3, c.GetMaxFailedLogins())
	assert.False(t, c.GetEnableRateLimiting())
	assert.True(t, c.GetVerifyTokens())
	assert.Equal(t, "https://auth.example.com", c.GetAPIBaseURL())

	origins := c.GetAllowedOrigins()
	assert.True(t, origins.IsAllowedOrigin("https://a.example.com"))
	assert.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	assert.False(t, origins.IsAllowedOrigin("https://c.example.com"))
	assert.Equal(t, "https://a.example.com, https://b.example.com", origins.String())
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "portal.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORTAL_STORAGE=memory\nREDIS_PREFIX=test:\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("PORTAL_STORAGE")
		_ = os.Unsetenv("REDIS_PREFIX")
	})

	c, err := config.Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "memory", c.GetStorageBackend())
	assert.Equal(t, "test:", c.GetRedisPrefix())

	_, err = config.Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}
