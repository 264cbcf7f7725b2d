// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases, always absolute
	Port     int
	LogLevel string
	DevMode  bool

	// Selection defaults, used when a run request leaves them unset.
	RiskAversion      float64 // lambda in the mean-variance objective
	Cardinality       int     // number of assets to select
	LookbackDays      int     // price-history window for return statistics
	Solver            string  // exhaustive, annealing, relaxation or auto
	SelectionSchedule string  // cron expression for periodic re-selection, empty disables
}

// Load reads configuration from environment variables.
// A .env file is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QFOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("GO_PORT", 8001),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		RiskAversion:      getEnvAsFloat("QFOLIO_RISK_AVERSION", 0.5),
		Cardinality:       getEnvAsInt("QFOLIO_CARDINALITY", 5),
		LookbackDays:      getEnvAsInt("QFOLIO_LOOKBACK_DAYS", 365),
		Solver:            getEnv("QFOLIO_SOLVER", "auto"),
		SelectionSchedule: getEnv("QFOLIO_SELECTION_SCHEDULE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.RiskAversion <= 0 {
		return fmt.Errorf("risk aversion must be positive, got %g", c.RiskAversion)
	}
	if c.Cardinality < 1 {
		return fmt.Errorf("cardinality must be at least 1, got %d", c.Cardinality)
	}
	if c.LookbackDays < 2 {
		return fmt.Errorf("lookback window must be at least 2 days, got %d", c.LookbackDays)
	}
	return nil
}

// DatabasePath returns the absolute path for a named database file.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
