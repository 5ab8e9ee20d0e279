package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET",
	"S3_BUCKET_NAME", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
	"DATABASE_URL", "MAX_CANVAS_CLIENTS", "COMFYCOLLAB_URL",
	"PRESENCE_RECONNECT_ATTEMPTS", "PRESENCE_RECONNECT_DELAY", "PRESENCE_SWEEP_INTERVAL",
	"PRESENCE_CURSOR_TTL", "PRESENCE_SELECTION_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.False(t, cfg.StorageEnabled())
	assert.Equal(t, 50, cfg.MaxCanvasClients)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadConfig_ProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET_NAME")
}

func TestLoadConfig_PartialS3IsRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET_NAME", "outputs")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_ENDPOINT")
}

func TestLoadConfig_PortRange(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "80")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("PORT", "http")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeFile(t, `
PORT: 9090
ALLOWED_ORIGINS: "http://a.test, http://b.test"
MAX_CANVAS_CLIENTS: 3
JWT_SECRET: from-file
`))
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.MaxCanvasClients)
	assert.Equal(t, "from-env", cfg.JWTSecret, "environment wins over the file")
}

func TestLoadConfig_BadFile(t *testing.T) {
	clearEnv(t)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("CONFIG_FILE", writeFile(t, "PORT: [1, 2"))
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestLoadPresenceConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadPresenceConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)

	ch := cfg.Channel()
	assert.Equal(t, time.Second, ch.SweepInterval)
	assert.Equal(t, 5*time.Second, ch.CursorTTL)
	assert.Equal(t, 30*time.Second, ch.SelectionTTL)
}

func TestLoadPresenceConfig_Durations(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRESENCE_CURSOR_TTL", "2500")
	t.Setenv("PRESENCE_SELECTION_TTL", "1m")
	t.Setenv("PRESENCE_RECONNECT_ATTEMPTS", "0")

	cfg, err := LoadPresenceConfig()
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.CursorTTL)
	assert.Equal(t, time.Minute, cfg.SelectionTTL)
	assert.Equal(t, 0, cfg.ReconnectAttempts)

	t.Setenv("PRESENCE_SWEEP_INTERVAL", "-5")
	_, err = LoadPresenceConfig()
	assert.Error(t, err)

	t.Setenv("PRESENCE_SWEEP_INTERVAL", "soon")
	_, err = LoadPresenceConfig()
	assert.Error(t, err)
}

func TestPresenceConfig_Transport(t *testing.T) {
	cfg := PresenceConfig{ServerURL: "https://collab.test/", ReconnectAttempts: 0, ReconnectDelay: time.Second}

	tc, err := cfg.Transport("ab12")
	require.NoError(t, err)
	assert.Equal(t, "wss://collab.test/ws/ab12", tc.URL)
	assert.Equal(t, -1, tc.Attempts, "zero attempts disables re-dialing")

	cfg.ReconnectAttempts = 3
	tc, err = cfg.Transport("ab12")
	require.NoError(t, err)
	assert.Equal(t, 3, tc.Attempts)

	cfg.ServerURL = "ftp://collab.test"
	_, err = cfg.Transport("ab12")
	assert.Error(t, err)
}
