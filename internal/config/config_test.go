package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.MatchBatch)
	assert.Equal(t, 10, cfg.DailyMatchLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.MatchInterval)
	assert.Equal(t, time.UTC, cfg.LimitTimezone)
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("MATCH_BATCH", "20")
	t.Setenv("DAILY_MATCH_LIMIT", "0")
	t.Setenv("QUEUE_TTL", "5m")
	t.Setenv("LIMIT_TIMEZONE", "America/New_York")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 20, cfg.MatchBatch)
	assert.Equal(t, 0, cfg.DailyMatchLimit)
	assert.Equal(t, 5*time.Minute, cfg.QueueTTL)
	assert.Equal(t, "America/New_York", cfg.LimitTimezone.String())
}

func TestLoadCollectsErrors(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MATCH_BATCH", "1")
	t.Setenv("QUEUE_TTL", "soon")
	t.Setenv("LIMIT_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATCH_BATCH")
	assert.Contains(t, err.Error(), "QUEUE_TTL")
	assert.Contains(t, err.Error(), "LIMIT_TIMEZONE")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
