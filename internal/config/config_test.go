package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "shop.events", cfg.Rabbit.Exchange)
	assert.Equal(t, "shop.admin-alerts", cfg.Rabbit.AlertQueue)
	assert.Equal(t, "shop.notify-jobs", cfg.Rabbit.NotifyQueue)
	assert.Equal(t, 32, cfg.Outbox.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Outbox.Interval())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout())
	assert.False(t, cfg.Telegram.Enabled())
	assert.False(t, cfg.Email.Enabled())
	assert.False(t, cfg.SMS.Enabled())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  shutdownTimeoutSec: 5
telegram:
  token: "file-token"
  adminChatId: 777
  timeoutMs: 2500
email:
  host: smtp.example.com
  from: shop@example.com
outbox:
  intervalMs: 500
  batchSize: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout())
	assert.True(t, cfg.Telegram.Enabled())
	assert.EqualValues(t, 777, cfg.Telegram.AdminChatID)
	assert.Equal(t, 2500*time.Millisecond, cfg.Telegram.Timeout())
	assert.True(t, cfg.Email.Enabled())
	assert.Equal(t, 587, cfg.Email.Port)
	assert.Equal(t, "shop@example.com", cfg.Email.Username, "username defaults to from address")
	assert.Equal(t, 500*time.Millisecond, cfg.Outbox.Interval())
	assert.Equal(t, 8, cfg.Outbox.BatchSize)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "file-token"
database:
  url: "postgres://file"
`)

	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_ADMIN_CHAT_ID", "900")
	t.Setenv("SHOP_DATABASE_URL", "postgres://env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.EqualValues(t, 900, cfg.Telegram.AdminChatID)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}
