package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elys-network/pegguard/internal/config"
	"github.com/elys-network/pegguard/internal/controller"
	"github.com/elys-network/pegguard/internal/keeper"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/metrics"
	"github.com/elys-network/pegguard/internal/oracle"
	"github.com/elys-network/pegguard/internal/state"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/web"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// main is the entry point of the peg controller, its keeper and the API.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel, config.LogFile)
	log.Info().Msg("Peg controller starting...")

	// Safety switch: only the paper market is supported.
	if config.Mode != config.ModePaper {
		log.Fatal().Str("mode", config.Mode).Msg("PEGGUARD_MODE is not set to 'paper'. Halting to prevent accidental execution. Set PEGGUARD_MODE=paper to run.")
	}

	recorder, params := openRecorder()
	if config.DatabaseEnabled {
		defer state.CloseDB()
	}

	// --- 2. Paper market and oracles ---
	scenario, err := config.LoadScenario(config.ScenarioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load paper-market scenario")
	}
	genesis, err := scenario.Build(config.ControllerAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build paper-market ledger")
	}
	chain := ledger.NewChain(genesis, nil)
	log.Info().Str("scenario", config.ScenarioFile).Msg("Paper market ready")

	twap, err := oracle.NewTWAP(params.TwapWindow, chain.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create TWAP oracle")
	}

	// --- 3. Controller ---
	// Owner band changes outlive a restart only when they reach the database.
	var bandStore controller.BandStore
	if pg, ok := recorder.(state.PostgresRecorder); ok {
		bandStore = pg
	}

	ctrl, err := controller.New(controller.Config{
		Chain:           chain,
		Pair:            scenario.Pair,
		Address:         config.ControllerAddress,
		Owner:           config.OwnerAddress,
		StabilityModule: config.StabilityModuleAddress,
		RewardRecipient: config.RewardRecipient,
		Minter:          ledger.BankMinter{Denom: scenario.Pair.ManagedDenom},
		SpotOracle:      oracle.NewPoolSpotOracle(scenario.Pair),
		TwapOracle:      twap,
		Parameters:      params,
		Harvesters:      config.Harvesters,
		Events:          recorder,
		BandStore:       bandStore,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create peg controller")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	// --- 4. Keeper ---
	k, err := keeper.New(keeper.Config{
		Vault:           ctrl,
		Recorder:        recorder,
		Address:         config.KeeperAddress,
		MaxAttempts:     params.KeeperMaxAttempts,
		Observer:        twap,
		Schedule:        config.KeeperSchedule,
		ObserveSchedule: config.ObserveSchedule,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The TWAP needs one observation before the controller can price anything.
	if err := k.Observe(); err != nil {
		log.Fatal().Err(err).Msg("Failed to record the initial spot observation")
	}
	if config.RunOnStart {
		if _, err := k.RunCycle(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial keeper cycle ended with an error")
		}
	}
	if err := k.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start keeper")
	}

	// --- 5. Start Web Server ---
	webServer, err := web.NewWebServer(web.Config{
		Port:     config.WebPort,
		Vault:    ctrl,
		Recorder: recorder,
		Market:   chain,
		Gatherer: registry,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create web server")
	}
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting peg controller API")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping...")

	k.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Peg controller stopped")
}

// openRecorder connects to PostgreSQL when configured and resolves the band
// parameters. The active parameters in the database take precedence over the
// environment; the environment seeds them on first start.
func openRecorder() (state.Recorder, types.BandParameters) {
	if !config.DatabaseEnabled {
		log.Warn().Msg("DB_HOST not set. Cycles and events are kept in memory only.")
		return state.NewMemoryRecorder(), config.BandParameters
	}

	if err := state.InitDB(config.Database); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	params, err := state.LoadActiveBandParameters(config.DefaultBandConfigName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active band parameters, using configured values and saving.")
		if _, err := state.SaveBandParameters(config.BandParameters, config.DefaultBandConfigName, config.DefaultBandConfigVersion, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial band parameters.")
		}
		return state.PostgresRecorder{ConfigName: config.DefaultBandConfigName}, config.BandParameters
	}
	log.Info().
		Str("floorPrice", params.FloorPrice.String()).
		Str("capPrice", params.CapPrice.String()).
		Msg("Band parameters loaded from database")
	return state.PostgresRecorder{ConfigName: config.DefaultBandConfigName}, *params
}
