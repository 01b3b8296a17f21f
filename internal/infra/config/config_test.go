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
	t.Setenv("APP_ENV", "dev")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "marketplace", cfg.MongoDB)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, []string{"*"}, cfg.WSAllowedOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WSAllowedOrigins)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"STORE_TIMEOUT": "soon"}},
		{name: "bad backoff", env: map[string]string{"RETRY_BACKOFF": "1s,later"}},
		{name: "bad redis db", env: map[string]string{"REDIS_DB": "x"}},
		{name: "ping slower than pong", env: map[string]string{"WS_PING_INTERVAL": "2m"}},
		{name: "missing secret in prod", env: map[string]string{"APP_ENV": "prod", "JWT_SECRET": ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "dev")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_ADDR=:9999\nREDIS_CHANNEL=from-file\n"), 0o600))
	t.Setenv("APP_ENV", "dev")
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("REDIS_CHANNEL", "")
	require.NoError(t, os.Unsetenv("REDIS_CHANNEL"))

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, ":7000", os.Getenv("HTTP_ADDR"))
	assert.Equal(t, "from-file", os.Getenv("REDIS_CHANNEL"))
}
