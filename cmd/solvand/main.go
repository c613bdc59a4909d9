package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/whale-professor/Solvan/internal/adapter/repo"
	"github.com/whale-professor/Solvan/internal/conversation"
	"github.com/whale-professor/Solvan/internal/domain"
	"github.com/whale-professor/Solvan/internal/gateway"
	"github.com/whale-professor/Solvan/internal/http/handlers"
	"github.com/whale-professor/Solvan/internal/http/httpapi"
	"github.com/whale-professor/Solvan/internal/infra"
	"github.com/whale-professor/Solvan/internal/keygen"
	"github.com/whale-professor/Solvan/internal/queue"
	"github.com/whale-professor/Solvan/internal/stats"
	"github.com/whale-professor/Solvan/internal/store"
	"github.com/whale-professor/Solvan/internal/track"
	"github.com/whale-professor/Solvan/internal/worker"
)

const sweepInterval = 5 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage drivers: Postgres when DATABASE_URL is set, in-memory
	// otherwise. The in-memory mode loses queued jobs on restart, which is
	// acceptable for a transient deployment.
	var (
		jobs    domain.JobRepository
		results domain.ResultRepository
		sink    domain.StatsRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		jobs = repo.NewJobRepository(pool)
		results = repo.NewResultRepository(pool)
		sink = repo.NewStatsRepository(pool)
		logger.Info().Msg("using postgres drivers")
	} else {
		jobs = queue.NewMemory()
		results = store.NewMemory()
		sink = stats.NewLogSink(logger)
		logger.Info().Msg("using in-memory drivers")
	}

	disp := queue.NewDispatcher(jobs, cfg.QueuePollInterval, logger)
	waiter := queue.NewWaiter(disp, results)
	reg := track.NewRegistry()
	coord := track.NewCoordinator(reg, disp, logger)

	bot, err := gateway.NewClient(gateway.Options{
		Token:   cfg.BotToken,
		BaseURL: cfg.BotAPIBaseURL,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build bot client")
	}

	machine := conversation.NewMachine(disp, waiter, reg, coord, bot, conversation.Config{
		AdminOwnerID:       cfg.AdminOwnerID,
		AwaitTimeout:       cfg.AwaitTimeout,
		SessionIdleTimeout: cfg.SessionIdleTimeout,
	}, logger)
	go machine.RunSweeper(ctx, sweepInterval)

	runner := keygen.NewRunner(cfg.GeneratorBin, cfg.GeneratorTimeout, logger)
	workers := worker.NewPool(cfg.WorkerSlots, disp, runner, results, sink, cfg.ResultTTL, logger)

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- workers.Run(ctx)
	}()

	app := &handlers.App{
		Events:        machine,
		Acker:         bot,
		Queue:         disp,
		Flush:         machine,
		WebhookToken:  cfg.BotToken,
		WebhookSecret: cfg.WebhookSecret,
		AdminToken:    cfg.AdminToken,
		Log:           logger,
	}
	router := httpapi.NewRouter(app, logger, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	app.Drain()

	if err := <-poolDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker pool stopped with error")
	}
	logger.Info().Msg("stopped")
}
