package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	schemaSQL := `
		-- Holder snapshot source. Balances and tiers are maintained by the indexer.
		CREATE TABLE IF NOT EXISTS holders (
			wallet VARCHAR(64) PRIMARY KEY,
			token_balance DECIMAL(30, 9) NOT NULL DEFAULT 0,
			tier VARCHAR(16) NOT NULL,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT holders_balance_non_negative CHECK (token_balance >= 0)
		);
		CREATE INDEX IF NOT EXISTS idx_holders_first_seen ON holders(first_seen_at, wallet);

		-- Claim ledger: one row per holder per weekly epoch.
		CREATE TABLE IF NOT EXISTS reward_claims (
			epoch VARCHAR(16) NOT NULL,
			wallet VARCHAR(64) NOT NULL,
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			amount DECIMAL(30, 9),
			tx_ref TEXT,
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (epoch, wallet)
		);
		CREATE INDEX IF NOT EXISTS idx_reward_claims_wallet ON reward_claims(wallet);

		CREATE TABLE IF NOT EXISTS cycle_summaries (
			summary_id SERIAL PRIMARY KEY,
			cycle_id UUID NOT NULL UNIQUE,
			cycle_number INTEGER NOT NULL,
			epoch VARCHAR(16) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			total_pool DECIMAL(30, 9) NOT NULL,
			total_distributed DECIMAL(30, 9) NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			compounds_succeeded INTEGER NOT NULL,
			compounds_failed INTEGER NOT NULL,
			tx_refs TEXT[], -- PostgreSQL array of strings for tx refs
			outcomes JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_summaries_started ON cycle_summaries(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_summaries_epoch ON cycle_summaries(epoch);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	if err := ensureCycleCounterTable(); err != nil {
		return err
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
