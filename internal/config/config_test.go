package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "GYMCHAT_AI_PROVIDER", "GYMCHAT_AI_MODEL", "GYMCHAT_ADDR",
		"DB_DRIVER", "DB_HOST", "DB_NAME", "DB_USER", "DB_PASS", "DB_DSN", "DB_PORT", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, DefaultProvider, cfg.AI.Provider)
	assert.Equal(t, DefaultModel, cfg.AI.Model)
	assert.Equal(t, DefaultSystemInstruction, cfg.AI.SystemInstruction)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "postgres", cfg.Database.DBName)
	assert.Equal(t, "postgres", cfg.Database.Username)
	assert.Equal(t, "mysecretpassword", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, ":5000", cfg.BasicConfig.ServerAddress)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"database": {"driver": "sqlite3", "dsn": "file.db", "host": "db.internal"}, "basic_config": {"static_dir": "web"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("DB_HOST", "override")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ADDR", "cache:6380")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "file.db", cfg.Database.DSN)
	assert.Equal(t, "override", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, filepath.Join(dir, "web"), cfg.BasicConfig.StaticDir)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "ai:\n  provider: openai\n  model: gpt-4o-mini\n  api_key: sk-test\ndatabase:\n  driver: mysql\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, 3306, cfg.Database.Port)
}
