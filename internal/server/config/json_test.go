package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"database_dsn":         "postgres://localhost/sync",
		"cache_path":           "offline.db",
		"claim_batch_size":     25,
		"lease_timeout":        "10m",
		"queue_sweep_schedule": "@every 30s",
		"cache_sweep_schedule": "@every 5m",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "postgres://localhost/sync", cfg.DatabaseDSN)
		assert.Equal(t, "offline.db", cfg.CachePath)
		assert.Equal(t, 25, cfg.ClaimBatchSize)
		assert.Equal(t, 10*time.Minute, cfg.LeaseTimeout)
		assert.Equal(t, "@every 30s", cfg.QueueSweepSchedule)
		assert.Equal(t, "@every 5m", cfg.CacheSweepSchedule)
	})

	t.Run("no config flag leaves config untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{DatabaseDSN: "keep"}
		parseJson(cfg)

		assert.Equal(t, "keep", cfg.DatabaseDSN)
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "absent.json")}

		cfg := &Config{}
		assert.Panics(t, func() { parseJson(cfg) })
	})
}
