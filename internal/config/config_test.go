package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 9006, cfg.Port)
	assert.Equal(t, 0, cfg.TrigMode)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.True(t, cfg.OpenLog)
	assert.Equal(t, "./resources", cfg.SrcDir)
}

func TestLoadParsesOverrides(t *testing.T) {
	cfg, err := Load([]string{
		"--port=8080",
		"--trig-mode=3",
		"--timeout-ms=30000",
		"--linger",
		"--sql-host=db.internal",
		"--sql-pool-size=16",
		"--workers=4",
	})
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 3, cfg.TrigMode)
	assert.Equal(t, 30000, cfg.IdleTimeoutMs)
	assert.True(t, cfg.LingerOn)
	assert.Equal(t, "db.internal", cfg.SQLHost)
	assert.Equal(t, 16, cfg.SQLPoolSize)
	assert.Equal(t, 4, cfg.WorkerCount)
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	_, err := Load([]string{"--port=80"})
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeTrigMode(t *testing.T) {
	_, err := Load([]string{"--trig-mode=9"})
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--bogus-flag"})
	assert.Error(t, err)
}
