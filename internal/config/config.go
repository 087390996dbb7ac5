package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource       string
	StoreDriver    string
	Port           string
	Env            string
	LogLevel       string
	LogFormat      string
	MaxConns       int32
	MigrateOnStart bool
}

// Load reads the environment, after merging a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	driver := strings.ToLower(getenv("STORE_DRIVER", DriverPostgres))
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, driver)
	}

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" && driver == DriverPostgres {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	maxConns, err := strconv.ParseInt(getenv("DB_MAX_CONNS", "10"), 10, 32)
	if err != nil || maxConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be a positive integer")
	}

	migrate, err := strconv.ParseBool(getenv("MIGRATE_ON_START", "true"))
	if err != nil {
		return nil, fmt.Errorf("MIGRATE_ON_START must be a boolean: %w", err)
	}

	return &Config{
		DBSource:       dbSource,
		StoreDriver:    driver,
		Port:           getenv("SERVER_PORT", "8080"),
		Env:            getenv("ENVIRONMENT", "development"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "json"),
		MaxConns:       int32(maxConns),
		MigrateOnStart: migrate,
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
