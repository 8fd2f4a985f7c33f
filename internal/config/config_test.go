package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, StorePostgres, cfg.StoreDriver)
	require.Equal(t, "DOBRODOSLI10", cfg.WelcomeDiscountCode)
	require.Equal(t, 5*time.Minute, cfg.WelcomeCooldown)
	require.Equal(t, 7*24*time.Hour, cfg.ConfirmationTTL)
	require.Equal(t, 10, cfg.RateLimit)
	require.False(t, cfg.AllowSimulatedDispatch)
	require.Empty(t, cfg.CORSOrigins)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "store_driver: memory\nwelcome_cooldown: 10m\npublic_base_url: https://file.example\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	t.Setenv("PUBLIC_BASE_URL", "https://zelenivrt.si")
	t.Setenv("ALLOW_SIMULATED_DISPATCH", "true")
	t.Setenv("CORS_ORIGINS", "https://zelenivrt.si, http://localhost:5173,")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.StoreDriver)
	require.Equal(t, 10*time.Minute, cfg.WelcomeCooldown)
	require.Equal(t, "https://zelenivrt.si", cfg.PublicBaseURL)
	require.True(t, cfg.AllowSimulatedDispatch)
	require.Equal(t, []string{"https://zelenivrt.si", "http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MAIL_REPLY_TO=info@zelenivrt.si\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAIL_REPLY_TO") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "info@zelenivrt.si", cfg.MailReplyTo)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load(t.TempDir())
	require.ErrorContains(t, err, "STORE_DRIVER")
}
