package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@db:5432/slotbook")
	t.Setenv("MATRIX_SAVE_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 3*time.Second, cfg.MatrixSaveTimeout)
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.Equal(t, 300, cfg.RateLimitPerMinute)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("MATRIX_SAVE_TIMEOUT", "0s")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("MATRIX_SAVE_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("SLOTBOOK_API_URL", "https://slotbook.internal")
	cfg, err := LoadClientConfig()
	require.NoError(t, err)
	require.Equal(t, "https://slotbook.internal", cfg.APIURL)
	require.Equal(t, 2, cfg.Retries)
}

func TestConfigConnectionOptions(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@db:5432/slotbook")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	pg := cfg.Postgres("slotbook-worker")
	require.Equal(t, "postgres://u:p@db:5432/slotbook", pg.DSN)
	require.EqualValues(t, 10, pg.MaxConns)
	require.Equal(t, 5*time.Minute, pg.MaxConnIdleTime)
	require.Equal(t, "slotbook-worker", pg.ApplicationName)

	redis := cfg.Redis()
	require.Equal(t, "127.0.0.1:6379", redis.Addr)
	require.Equal(t, "secret", redis.Password)
	require.Equal(t, 3, redis.DB)

	t.Setenv("REDIS_DB", "-1")
	_, err = LoadConfig()
	require.Error(t, err)
}
