package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/elys-network/rdm/internal/allocator"
	"github.com/elys-network/rdm/internal/config"
	"github.com/elys-network/rdm/internal/distributor"
	"github.com/elys-network/rdm/internal/guardian"
	"github.com/elys-network/rdm/internal/logger"
	"github.com/elys-network/rdm/internal/metrics"
	"github.com/elys-network/rdm/internal/scheduler"
	"github.com/elys-network/rdm/internal/settlement"
	"github.com/elys-network/rdm/internal/state"
	"github.com/elys-network/rdm/internal/web"
)

// main is the entry point for the reward distribution manager.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.LogLevel, cfg.LogFile)
	log.Info().Msg("Reward Distribution Manager Starting...")

	if cfg.Mode != "live" {
		log.Fatal().Msg("RDM_MODE is not set to 'live'. Halting to prevent accidental payouts. Set RDM_MODE=live to run.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := state.DBConfig{
		Host: cfg.Database.Host, Port: cfg.Database.Port,
		User: cfg.Database.User, Password: cfg.Database.Password,
		DBName: cfg.Database.Name, SSLMode: cfg.Database.SSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	m := metrics.New()

	// --- Start Web Server ---
	webServer := web.NewWebServer(cfg.WebPort, web.StateSource{}, m.Registry())
	go func() {
		log.Info().Str("port", cfg.WebPort).Str("url", "http://localhost:"+cfg.WebPort).Msg("Starting RDM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 2. Guardian gateway connection ---
	grpcEndpoint := cfg.Endpoints.GuardianGRPC
	var creds grpc.DialOption
	if strings.Contains(grpcEndpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	grpcClient, err := grpc.Dial(grpcEndpoint, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("gRPC connection error")
	}
	defer grpcClient.Close()
	log.Info().Str("endpoint", grpcEndpoint).Msg("gRPC connected")

	gateway, err := guardian.NewClient(grpcClient, guardian.Config{
		TreasuryWallet: cfg.TreasuryWallet,
		Denom:          cfg.Distribution.RewardDenom,
		Precision:      cfg.Distribution.TokenPrecision,
		CallTimeout:    cfg.Endpoints.CallTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create guardian client")
	}
	if err := gateway.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Guardian health check failed, cycles will retry on the next tick")
	}

	// --- 3. Wire the distribution pipeline ---
	holders := state.NewHolderStore(nil)

	policy := settlement.DefaultPolicy()
	policy.MaxAttempts = cfg.Distribution.MaxClaimAttempts
	policy.Concurrency = cfg.Distribution.SettlementConcurrency

	engine, err := settlement.NewEngine(gateway, gateway, holders, policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create settlement engine")
	}

	dist, err := distributor.New(distributor.Config{
		Settler:    engine,
		Allocation: allocator.Options{WeightByBalance: cfg.Distribution.WeightByBalance},
		Metrics:    m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create distributor")
	}

	sched, err := scheduler.New(scheduler.Config{
		Treasury:           gateway,
		Snapshot:           holders,
		Runner:             dist,
		Counter:            state.SummarySink{},
		Sink:               state.SummarySink{},
		RewardPool:         cfg.Distribution.RewardPool,
		MinTreasuryBalance: cfg.Distribution.MinTreasuryBalance,
		Metrics:            m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	// --- 4. Main loop ---
	sched.RunLoop(ctx, cfg.Distribution.LoopInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Reward Distribution Manager stopped")
}
