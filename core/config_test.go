package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ENV", "")
		conf, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "DEV", conf.Env)
		assert.False(t, conf.TestMode)
		assert.Equal(t, "sqlite", conf.Database.Engine)
		assert.Equal(t, ":8000", conf.Server.Address)
		assert.Equal(t, 7*24*time.Hour, conf.Server.JWTExpirationDelta)
		assert.Empty(t, conf.Redis.Addr)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("ENV", "test")
		t.Setenv("TEST_DATABASE_ENGINE", "MEMORY")
		t.Setenv("TEST_REDIS_TTL", "1m")
		conf, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "TEST", conf.Env)
		assert.True(t, conf.TestMode)
		assert.Equal(t, "memory", conf.Database.Engine)
		assert.Equal(t, time.Minute, conf.Redis.TTL)
	})

	t.Run("dotenv file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config", ".env.qa"), []byte("QA_SERVER_ADDRESS=:9000\n"), 0o600))

		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(wd) })
		t.Setenv("ENV", "qa")
		t.Setenv("QA_SERVER_ADDRESS", "")
		require.NoError(t, os.Unsetenv("QA_SERVER_ADDRESS")) // loaded from the file only when unset

		conf, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, ":9000", conf.Server.Address)
	})
}
