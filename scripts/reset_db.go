package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/state"
)

// reset_db clears the claim ledger and cycle history. Holders are kept unless
// -holders is given, since they are owned by the indexer.
func main() {
	dropHolders := flag.Bool("holders", false, "also truncate the holders table")
	flag.Parse()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel, "")
	log.Info().Msg("Starting database reset script...")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPortStr := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSSLMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbUser == "" {
		log.Fatal().Msg("DB_USER environment variable not set.")
	}
	if dbName == "" {
		log.Fatal().Msg("DB_NAME environment variable not set.")
	}
	if dbSSLMode == "" {
		dbSSLMode = "disable"
	}

	dbPort := 5432
	if dbPortStr != "" {
		if _, err := fmt.Sscanf(dbPortStr, "%d", &dbPort); err != nil {
			log.Fatal().Err(err).Str("DB_PORT", dbPortStr).Msg("Invalid DB_PORT")
		}
	}

	dbCfg := state.DBConfig{
		Host:     dbHost,
		Port:     dbPort,
		User:     dbUser,
		Password: dbPassword,
		DBName:   dbName,
		SSLMode:  dbSSLMode,
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	ctx := context.Background()
	lastCycle, err := state.GetCurrentCycleNumber(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read cycle counter")
	}
	log.Warn().Int("lastCycle", lastCycle).Msg("Discarding cycle history")

	truncate := `TRUNCATE TABLE reward_claims, cycle_summaries RESTART IDENTITY;`
	if *dropHolders {
		truncate = `TRUNCATE TABLE reward_claims, cycle_summaries, holders RESTART IDENTITY;`
	}
	if _, err := state.DB.ExecContext(ctx, truncate); err != nil {
		log.Fatal().Err(err).Msg("Failed to truncate tables")
	}
	if err := state.ResetCycleNumber(ctx, 0); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset cycle counter")
	}

	log.Info().Bool("holders", *dropHolders).Msg("Database reset complete!")
}
