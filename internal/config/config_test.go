package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "messages_dev", cfg.Chat.MessagesTable)
	assert.Equal(t, "users_dev", cfg.Chat.UsersTable)
	assert.Equal(t, 5, cfg.Chat.LiveWindow)
	assert.Equal(t, 5, cfg.Chat.OlderPageSize)
	assert.Equal(t, "chat-audio --dev", cfg.Media.AudioFolder)
	assert.Equal(t, int64(20<<20), cfg.Media.MaxUploadBytes)
	assert.Equal(t, 15*time.Minute, cfg.LinkPreview.TTL)
	assert.Equal(t, 5*time.Minute, cfg.LinkPreview.FallbackTTL)
}

func TestLoadProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("ALLOWED_EMAIL_ADDRESS", "a@example.com| b@example.com||")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "messages", cfg.Chat.MessagesTable)
	assert.Equal(t, 75, cfg.Chat.LiveWindow)
	assert.Equal(t, "chat-audio", cfg.Media.AudioFolder)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Auth.AllowedEmails)
}

func TestLoadProductionRequiresAllowlist(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("ALLOWED_EMAIL_ADDRESS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOWED_EMAIL_ADDRESS")
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("AUTH_VERIFY_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "false")
	t.Setenv("X_DUR", "3s")

	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.False(t, getEnvAsBool("X_BOOL", true))
	assert.Equal(t, 3*time.Second, getEnvAsDuration("X_DUR", time.Second))
	assert.Equal(t, []string{"d"}, getEnvAsList("X_MISSING", ",", []string{"d"}))
}
