// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.ServerPort)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "data/campuscoin.db", cfg.SQLitePath)
	assert.Equal(t, int64(1000), cfg.InitialBalance)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"STORE_BACKEND":    " Postgres ",
		"DB_HOST":          "db.internal",
		"DB_PORT":          "6543",
		"DB_NAME":          "coins",
		"INITIAL_BALANCE":  "250",
		"KAFKA_BROKERS":    "k1:9092,k2:9092",
		"SHUTDOWN_TIMEOUT": "5s",
	})
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.Equal(t, "coins", cfg.DB.DBName)
	assert.Equal(t, int64(250), cfg.InitialBalance)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "redis"}, "unknown STORE_BACKEND"},
		{"negative balance", map[string]string{"INITIAL_BALANCE": "-1"}, "INITIAL_BALANCE"},
		{"missing json path", map[string]string{"STORE_BACKEND": "jsonfile", "JSON_FILE_PATH": " "}, "JSON_FILE_PATH"},
		{"bad port", map[string]string{"DB_PORT": "not-a-port"}, "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
