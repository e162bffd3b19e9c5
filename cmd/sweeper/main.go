package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"forge/internal/adapter/repo"
	"forge/internal/infra"
	"forge/internal/ledger"
	"forge/internal/orchestrator"
	"forge/internal/poll"
	"forge/internal/provider"
	"forge/internal/sweeper"
)

// The sweeper is a sidecar process: it re-polls reservations whose jobs were
// still running when the API gave up waiting, and settles or refunds them.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	accounts := repo.NewAccountStore(dbpool)
	reservations := repo.NewReservationStore(dbpool)
	led := ledger.New(accounts, logger)

	providerClient, err := provider.NewClient(provider.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider client")
	}
	controller := poll.New(providerClient, logger)
	generator := orchestrator.NewGenerator(led, providerClient, controller, reservations, logger)

	sw := sweeper.New(reservations, generator, cfg.SweepMinAge, logger)

	logger.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("min_age", cfg.SweepMinAge).
		Msg("sweeper started")
	if err := sw.Run(ctx, cfg.SweepInterval); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("sweeper failed")
	}
	logger.Info().Msg("sweeper stopped")
}
