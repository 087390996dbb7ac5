package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DB_SOURCE", "STORE_DRIVER", "SERVER_PORT", "ENVIRONMENT", "LOG_LEVEL",
		"LOG_FORMAT", "DB_MAX_CONNS", "MIGRATE_ON_START"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_SOURCE", "postgres://u:p@localhost:5432/budget")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoadRequiresDBSourceForPostgres(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	assert.ErrorContains(t, err, "DB_SOURCE")
}

func TestLoadMemoryDriverNeedsNoDatabase(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "9090", cfg.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":    {"STORE_DRIVER": "mysql"},
		"max conns": {"STORE_DRIVER": "memory", "DB_MAX_CONNS": "lots"},
		"migrate":   {"STORE_DRIVER": "memory", "MIGRATE_ON_START": "maybe"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
