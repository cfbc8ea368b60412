package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/rdm/internal/types"
)

// Config holds all application configuration loaded from environment variables.
// It is built once at startup and passed explicitly to the components that need it.
type Config struct {
	// Mode must be "live" for claims to be broadcast.
	Mode string

	// TreasuryWallet is the base58 address whose balance gates a cycle.
	TreasuryWallet string

	Endpoints    Endpoints
	Distribution Distribution
	Database     Database

	// WebPort serves the dashboard API and /metrics.
	WebPort string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFile optionally mirrors logs to a file.
	LogFile string
}

// Database holds Postgres connection parameters.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// Load reads the configuration from environment variables. Variables without
// a documented default are required.
func Load() (*Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	cfg := &Config{}
	var err error

	if cfg.Mode, err = getEnv("RDM_MODE"); err != nil {
		return nil, err
	}
	if cfg.TreasuryWallet, err = getEnv("TREASURY_WALLET"); err != nil {
		return nil, err
	}
	if err := types.ValidateWallet(cfg.TreasuryWallet); err != nil {
		return nil, fmt.Errorf("TREASURY_WALLET: %w", err)
	}

	if cfg.Endpoints, err = loadEndpointConfig(); err != nil {
		return nil, err
	}
	if cfg.Distribution, err = loadDistributionConfig(); err != nil {
		return nil, err
	}
	if cfg.Database, err = loadDatabaseConfig(); err != nil {
		return nil, err
	}

	cfg.WebPort = getEnvDefault("WEB_PORT", "8080")
	cfg.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.LogFile = getEnvDefault("LOG_FILE", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("Mode", cfg.Mode).
		Str("TreasuryWallet", cfg.TreasuryWallet).
		Str("GuardianGRPC", cfg.Endpoints.GuardianGRPC).
		Float64("RewardPool", cfg.Distribution.RewardPool).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	d := c.Distribution
	if d.RewardPool <= 0 {
		return fmt.Errorf("REWARD_POOL_AMOUNT must be positive, got %v", d.RewardPool)
	}
	if d.MinTreasuryBalance < 0 {
		return fmt.Errorf("MIN_TREASURY_BALANCE cannot be negative, got %v", d.MinTreasuryBalance)
	}
	if d.TokenPrecision < 0 || d.TokenPrecision > 18 {
		return fmt.Errorf("TOKEN_PRECISION must be between 0 and 18, got %d", d.TokenPrecision)
	}
	if d.MaxClaimAttempts < 0 {
		return fmt.Errorf("MAX_CLAIM_ATTEMPTS cannot be negative, got %d", d.MaxClaimAttempts)
	}
	if d.SettlementConcurrency < 1 {
		return fmt.Errorf("SETTLEMENT_CONCURRENCY must be at least 1, got %d", d.SettlementConcurrency)
	}
	if d.LoopInterval <= 0 {
		return fmt.Errorf("LOOP_INTERVAL must be positive, got %s", d.LoopInterval)
	}
	if c.Endpoints.CallTimeout <= 0 {
		return fmt.Errorf("GUARDIAN_CALL_TIMEOUT must be positive, got %s", c.Endpoints.CallTimeout)
	}
	return nil
}

// LoadDatabase reads only the DB_* variables, for maintenance scripts that
// have no use for the rest of the configuration.
func LoadDatabase() (Database, error) {
	return loadDatabaseConfig()
}

func loadDatabaseConfig() (Database, error) {
	db := Database{
		Host:    getEnvDefault("DB_HOST", "localhost"),
		SSLMode: getEnvDefault("DB_SSLMODE", "disable"),
	}
	var err error
	if db.Port, err = getEnvAsIntDefault("DB_PORT", 5432); err != nil {
		return db, err
	}
	if db.User, err = getEnv("DB_USER"); err != nil {
		return db, err
	}
	db.Password = getEnvDefault("DB_PASSWORD", "")
	if db.Name, err = getEnv("DB_NAME"); err != nil {
		return db, err
	}
	return db, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvDefault retrieves a string environment variable or a fallback.
func getEnvDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsFloat64 retrieves a required environment variable as a float64.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsFloat64Default(key string, fallback float64) (float64, error) {
	if getEnvDefault(key, "") == "" {
		return fallback, nil
	}
	return getEnvAsFloat64(key)
}

func getEnvAsIntDefault(key string, fallback int) (int, error) {
	valueStr := getEnvDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsBoolDefault(key string, fallback bool) (bool, error) {
	valueStr := getEnvDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsDurationDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
