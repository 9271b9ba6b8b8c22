package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ledgerd", cfg.App.Name)
	assert.Equal(t, DriverPostgres, cfg.App.Storage)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, "postgres://postgres:@localhost:5432/ledgerd?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, 30*time.Second, cfg.Worker.Tick)
	assert.Equal(t, 5, cfg.Worker.OutboxMaxRetries)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	toml := `
[app]
storage = "memory"
port = "9000"

[worker]
tick = "10s"

[gateway]
base_url = "https://pay.example.com"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600))
	t.Setenv("LEDGER_APP_PORT", "9100")
	t.Setenv("LEDGER_DATABASE_URL", "postgres://ledger@db:5432/ledger")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.App.Storage)
	assert.Equal(t, "9100", cfg.App.Port)
	assert.Equal(t, 10*time.Second, cfg.Worker.Tick)
	assert.Equal(t, "https://pay.example.com", cfg.Gateway.BaseURL)
	assert.Equal(t, "postgres://ledger@db:5432/ledger", cfg.Database.DSN())
}

func TestLoad_RejectsUnknownStorage(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEDGER_APP_STORAGE", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "app.storage")
}
