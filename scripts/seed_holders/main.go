package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/rdm/internal/config"
	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/state"
	"github.com/elys-network/rdm/internal/types"
)

// seed_holders loads holders from a CSV of wallet,token_balance,tier rows into
// the holders table. A header row is skipped when present. Existing wallets
// get their balance and tier refreshed.
func main() {
	file := flag.String("file", "holders.csv", "CSV file with wallet,token_balance,tier rows")
	flag.Parse()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel, "")

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to open holders file")
	}
	defer f.Close()

	holders, err := parseHolders(f)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to parse holders file")
	}

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load database configuration")
	}
	if err := state.InitDB(state.DBConfig{
		Host: dbCfg.Host, Port: dbCfg.Port,
		User: dbCfg.User, Password: dbCfg.Password,
		DBName: dbCfg.Name, SSLMode: dbCfg.SSLMode,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	ctx := context.Background()
	seeded := 0
	for _, h := range holders {
		if err := state.UpsertHolder(ctx, h); err != nil {
			log.Error().Err(err).Str("wallet", h.Wallet).Msg("Failed to seed holder")
			continue
		}
		seeded++
	}

	log.Info().Int("seeded", seeded).Int("rows", len(holders)).Msg("Holder seeding complete")
}

func parseHolders(r io.Reader) ([]types.HolderRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var holders []types.HolderRecord
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(record[0], "wallet") {
			continue
		}

		balance, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid token_balance %q: %w", line, record[1], err)
		}
		tier, err := types.ParseTier(record[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		holders = append(holders, types.HolderRecord{
			Wallet:       record[0],
			TokenBalance: balance,
			Tier:         tier,
		})
	}
	return holders, nil
}
