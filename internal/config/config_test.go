package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadServerFromEnv(t *testing.T) {
	t.Setenv("QUARANTINE_ADDR", ":9000")
	t.Setenv("QUARANTINE_TICK_INTERVAL", "250ms")
	t.Setenv("QUARANTINE_STORE", "yaml")
	t.Setenv("QUARANTINE_EVENT_CHANCE", "0.5")
	t.Setenv("QUARANTINE_CORS_ORIGINS", "http://localhost:5173,http://localhost:5174")

	cfg, err := LoadServer()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, StoreYAML, cfg.Store)
	assert.Equal(t, 0.5, cfg.EventChance)
	assert.Len(t, cfg.CORSOrigins, 2)
}

func TestLoadServerRejectsBadValues(t *testing.T) {
	t.Setenv("QUARANTINE_STORE", "postgres")
	_, err := LoadServer()
	assert.Error(t, err)

	t.Setenv("QUARANTINE_STORE", "memory")
	t.Setenv("QUARANTINE_EVENT_CHANCE", "2")
	_, err = LoadServer()
	assert.Error(t, err)

	t.Setenv("QUARANTINE_EVENT_CHANCE", "0")
	t.Setenv("QUARANTINE_TICK_INTERVAL", "soon")
	_, err = LoadServer()
	assert.Error(t, err)
}

func TestLoadTUI(t *testing.T) {
	t.Setenv("QUARANTINE_SESSION", "mine")
	cfg, err := LoadTUI()
	require.NoError(t, err)
	assert.Equal(t, "mine", cfg.SessionID)
	assert.Equal(t, time.Second, cfg.TickInterval)
}
