package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"forge/internal/adapter/repo"
	"forge/internal/agent"
	"forge/internal/http/handlers"
	httpapi "forge/internal/http/httpapi"
	"forge/internal/infra"
	"forge/internal/ledger"
	"forge/internal/llm"
	"forge/internal/orchestrator"
	"forge/internal/poll"
	"forge/internal/provider"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := repo.EnsureSchema(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

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

	templates := orchestrator.DefaultCatalog()
	if cfg.PlanTemplatesPath != "" {
		templates, err = orchestrator.LoadCatalog(cfg.PlanTemplatesPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PlanTemplatesPath).Msg("failed to load plan templates")
		}
	}

	// Without an LLM key the service still serves generation, templates and
	// credits; goal planning and the agent return 503.
	var planner orchestrator.Planner
	var llmClient *llm.Client
	if cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewClient(llm.Options{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build llm client")
		}
		planner = orchestrator.NewLLMPlanner(llmClient, logger)
	}
	plans := orchestrator.NewPlanOrchestrator(generator, planner, templates, logger)

	var loop *agent.Loop
	if llmClient != nil {
		loop = agent.NewLoop(llmClient, agent.NewToolbox(generator, plans), logger)
	}

	app := &handlers.App{
		Logger:    logger,
		Ledger:    led,
		Accounts:  accounts,
		Generator: generator,
		Plans:     plans,
		Agent:     loop,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		DefaultLocale:   cfg.DefaultLocale,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
