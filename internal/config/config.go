// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"campus-coin/internal/domain"
	"campus-coin/pkg/db" // Import db package for its Config struct
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendJSONFile = "jsonfile"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort      string        `env:"SERVER_PORT" envDefault:"3000"`
	StoreBackend    string        `env:"STORE_BACKEND" envDefault:"sqlite"`
	JSONFilePath    string        `env:"JSON_FILE_PATH" envDefault:"data/ledger.json"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"data/campuscoin.db"`
	DB              db.Config     `envPrefix:"DB_"`
	InitialBalance  int64         `env:"INITIAL_BALANCE"` // Defaults to domain.DefaultInitialBalance
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic      string        `env:"KAFKA_TOPIC" envDefault:"campuscoin.ledger-events"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// LoadConfig loads configuration from environment variables, after merging an
// optional .env file from the working directory. Real environment variables win.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	cfg := defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom parses configuration from an explicit variable set; it never reads
// the process environment.
func LoadFrom(vars map[string]string) (*AppConfig, error) {
	cfg := defaults()
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// defaults covers values whose source of truth lives outside this package.
func defaults() *AppConfig {
	return &AppConfig{InitialBalance: domain.DefaultInitialBalance}
}

// Validate rejects settings the application cannot start with.
func (c *AppConfig) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	case BackendJSONFile:
		if strings.TrimSpace(c.JSONFilePath) == "" {
			return fmt.Errorf("invalid config: JSON_FILE_PATH is required for the %s backend", BackendJSONFile)
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("invalid config: SQLITE_PATH is required for the %s backend", BackendSQLite)
		}
	default:
		return fmt.Errorf("invalid config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.InitialBalance < 0 {
		return fmt.Errorf("invalid config: INITIAL_BALANCE must not be negative, got %d", c.InitialBalance)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid config: SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
