package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 50, cfg.HistorySize)
	assert.Equal(t, 6, cfg.RoomHistorySize)
	assert.Equal(t, 10, cfg.MessageRateLimit)
	assert.Equal(t, time.Minute, cfg.MessageRateWindow)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.TrustProxy)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ROOM_HISTORY_SIZE", "5")
	t.Setenv("MESSAGE_RATE_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1,192.168.0.0/16")
	t.Setenv("AUTO_BLOCK_ENABLED", "true")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 5, cfg.RoomHistorySize)
	assert.Equal(t, 30*time.Second, cfg.MessageRateWindow)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
	assert.True(t, cfg.AutoBlockEnabled)
	assert.True(t, cfg.TrustProxy)
}

func TestProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_PUBLIC_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
}

func TestInvalidNumbers(t *testing.T) {
	t.Setenv("EVENT_BURST", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("EVENT_BURST", "abc")
	_, err = Load()
	assert.Error(t, err)
}
