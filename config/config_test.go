package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24, cfg.Tokens.ValidHours)
	assert.Equal(t, 30, cfg.Hub.PingIntervalSec)
	assert.Equal(t, 60, cfg.Hub.PongWaitSec)
	assert.Equal(t, 256, cfg.Hub.SendBuffer)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TOKEN_VALID_HOURS", "48")
	t.Setenv("HUB_PONG_WAIT_SEC", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 48, cfg.Tokens.ValidHours)
	assert.Equal(t, 60, cfg.Hub.PongWaitSec, "invalid int falls back to default")
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "canvas", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/canvas?sslmode=disable", c.DSN())

	c.URL = "postgres://localhost:5432/other?sslmode=disable"
	assert.Equal(t, c.URL, c.DSN(), "explicit URL wins over components")
}
