package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8000", cfg.Recorder.BaseURL)
	assert.Equal(t, 4, cfg.Recorder.StartRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Recorder.RetryBackoff)
	assert.Equal(t, "http://localhost:8889/%s/whep", cfg.Preview.WHEPURLTemplate)
	assert.Len(t, cfg.Preview.ICEUrls, 2)
	assert.Equal(t, 3*time.Second, cfg.Preview.SettleDelay)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECORDER_BASE_URL", "http://r58.local:8000")
	t.Setenv("RECORDER_START_RETRIES", "2")
	t.Setenv("PREVIEW_SETTLE_DELAY", "5s")
	t.Setenv("PREVIEW_ICE_URLS", " stun:a.example:3478 ,, stun:b.example:3478 ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://r58.local:8000", cfg.Recorder.BaseURL)
	assert.Equal(t, 2, cfg.Recorder.StartRetries)
	assert.Equal(t, 5*time.Second, cfg.Preview.SettleDelay)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.Preview.ICEUrls)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "r58", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/r58?sslmode=disable", c.DSN())

	c.URL = "postgres://elsewhere/r58"
	assert.Equal(t, "postgres://elsewhere/r58", c.DSN())
}
